// Package framer sends and receives typed multi-field messages over a
// channel. One message is the TLV concatenation of its encoded fields.
package framer

import (
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/typechan/internal/channel"
	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/protocol/codec"
	"github.com/danmuck/typechan/internal/protocol/schema"
	"github.com/danmuck/typechan/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Result reports a receive. Status follows the integer ABI: the number of
// populated fields on success, protocol.StatusEOF or protocol.StatusError
// otherwise.
type Result struct {
	Status int
	Fields int
}

func result(fields int, err error) Result {
	if err != nil {
		fields = 0
	}
	return Result{Status: protocol.Status(fields, err), Fields: fields}
}

// Framer binds a channel to an ordered field list.
type Framer struct {
	ch     *channel.Channel
	fields []*schema.Descriptor
	format *codec.Format
}

func New(ch *channel.Channel, fields []*schema.Descriptor) (*Framer, error) {
	if len(fields) > math.MaxUint16 {
		return nil, &protocol.SchemaError{Path: "#", Reason: fmt.Sprintf("%d fields exceed the message limit", len(fields))}
	}
	for i, d := range fields {
		if d == nil {
			return nil, &protocol.SchemaError{Path: fmt.Sprintf("#/%d", i), Reason: "missing field descriptor"}
		}
	}
	return &Framer{ch: ch, fields: fields}, nil
}

// NewFormat compiles a printf/scanf pattern into the field list.
func NewFormat(ch *channel.Channel, pattern string) (*Framer, error) {
	f, err := codec.CompileFormat(pattern)
	if err != nil {
		return nil, err
	}
	fr, err := New(ch, f.Fields())
	if err != nil {
		return nil, err
	}
	fr.format = f
	return fr, nil
}

// NewSchema loads a type document; an array with per-position items
// yields one field per item.
func NewSchema(ch *channel.Channel, doc map[string]any) (*Framer, error) {
	d, err := schema.Load(doc)
	if err != nil {
		return nil, err
	}
	return New(ch, schema.Fields(d))
}

// NewMerged binds both a pattern and a type document to one channel.
// Disagreement between them is a schema conflict.
func NewMerged(ch *channel.Channel, pattern string, doc map[string]any) (*Framer, error) {
	f, err := codec.CompileFormat(pattern)
	if err != nil {
		return nil, err
	}
	d, err := schema.Load(doc)
	if err != nil {
		return nil, err
	}
	fields, err := schema.Merge(f.Fields(), schema.Fields(d))
	if err != nil {
		return nil, err
	}
	fr, err := New(ch, fields)
	if err != nil {
		return nil, err
	}
	fr.format = f
	return fr, nil
}

func (f *Framer) Channel() *channel.Channel { return f.ch }

func (f *Framer) Fields() []*schema.Descriptor { return f.fields }

// Format is the compiled pattern, nil for schema-only framers.
func (f *Framer) Format() *codec.Format { return f.format }

func withField(err error, i int) error {
	var mm *protocol.TypeMismatchError
	if errors.As(err, &mm) && mm.Field < 0 {
		cp := *mm
		cp.Field = i
		return &cp
	}
	return err
}

// Encode packs values into one message payload.
func (f *Framer) Encode(values []any) ([]byte, error) {
	if err := codec.CheckArity(f.fields, len(values), "send"); err != nil {
		return nil, err
	}
	records := make([]tlv.Field, len(f.fields))
	for i, d := range f.fields {
		enc, err := codec.Encode(values[i], d)
		if err != nil {
			return nil, withField(err, i)
		}
		records[i] = tlv.Field{ID: uint16(i), Type: tlv.CodeFor(d), Value: enc}
	}
	return tlv.EncodeFields(records)
}

// Send encodes values in field order and transmits them as one logical
// message, chunked when it exceeds one datagram.
func (f *Framer) Send(values []any) error {
	payload, err := f.Encode(values)
	if err != nil {
		return err
	}
	if len(payload) <= f.ch.MaxPayload() {
		return f.ch.Send(payload)
	}
	return f.ch.SendChunked(payload)
}

// Recv receives one message and decodes its fields into dsts, each a
// pointer. Every field is decoded and checked against its destination
// before any destination is written; on error none is.
func (f *Framer) Recv(dsts []any, realloc bool) (Result, error) {
	if err := codec.CheckArity(f.fields, len(dsts), "recv"); err != nil {
		return result(0, err), err
	}
	fields, err := f.recvFields()
	if err != nil {
		return result(0, err), err
	}
	pending := make([]*codec.Pending, len(fields))
	for i, field := range fields {
		p, n, err := codec.Prepare(field.Value, f.fields[i], dsts[i], realloc)
		if err != nil {
			err = withField(err, i)
			return result(0, err), err
		}
		if n != len(field.Value) {
			err = &protocol.TypeMismatchError{Field: i, Type: f.fields[i].String(), Reason: "trailing bytes after value"}
			return result(0, err), err
		}
		pending[i] = p
	}
	for _, p := range pending {
		p.Commit()
	}
	return result(len(fields), nil), nil
}

// RecvValues receives one message and returns freshly decoded values.
func (f *Framer) RecvValues() ([]any, Result, error) {
	fields, err := f.recvFields()
	if err != nil {
		return nil, result(0, err), err
	}
	values := make([]any, len(fields))
	for i, field := range fields {
		v, n, err := codec.Decode(field.Value, f.fields[i])
		if err != nil {
			err = withField(err, i)
			return nil, result(0, err), err
		}
		if n != len(field.Value) {
			err = &protocol.TypeMismatchError{Field: i, Type: f.fields[i].String(), Reason: "trailing bytes after value"}
			return nil, result(0, err), err
		}
		values[i] = v
	}
	return values, result(len(values), nil), nil
}

func (f *Framer) recvFields() ([]tlv.Field, error) {
	payload, err := f.ch.RecvChunked()
	if err != nil {
		return nil, err
	}
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, &protocol.TypeMismatchError{Field: -1, Type: "message", Reason: err.Error()}
	}
	if err := codec.CheckArity(f.fields, len(fields), "message"); err != nil {
		log.Debug().Str("channel", f.ch.Name()).Int("fields", len(fields)).Msg("message arity mismatch")
		return nil, err
	}
	for i, field := range fields {
		if int(field.ID) != i {
			return nil, &protocol.TypeMismatchError{Field: i, Type: f.fields[i].String(), Reason: fmt.Sprintf("field id %d out of order", field.ID)}
		}
		if err := tlv.MustType(field, tlv.CodeFor(f.fields[i])); err != nil {
			return nil, &protocol.TypeMismatchError{Field: i, Type: f.fields[i].String(), Reason: err.Error()}
		}
	}
	return fields, nil
}

func (f *Framer) SendEOF() error { return f.ch.SendEOF() }

func (f *Framer) Close() error { return f.ch.Close() }

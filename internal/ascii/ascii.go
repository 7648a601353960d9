// Package ascii carries text over channels: plain lines, and table rows
// rendered and parsed with a printf/scanf pattern.
package ascii

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/danmuck/typechan/internal/channel"
	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/protocol/codec"
	"github.com/danmuck/typechan/internal/protocol/schema"
)

// CommentPrefix marks header and comment lines in a table stream.
const CommentPrefix = "#"

// LineOutput sends one text line per message.
type LineOutput struct {
	ch *channel.Channel
}

func NewLineOutput(ch *channel.Channel) *LineOutput {
	return &LineOutput{ch: ch}
}

func (o *LineOutput) SendLine(line string) error {
	return o.ch.SendChunked([]byte(line))
}

func (o *LineOutput) SendEOF() error { return o.ch.SendEOF() }

func (o *LineOutput) Close() error { return o.ch.Close() }

// LineInput receives one text line per message.
type LineInput struct {
	ch *channel.Channel
}

func NewLineInput(ch *channel.Channel) *LineInput {
	return &LineInput{ch: ch}
}

// RecvLine returns protocol.ErrEOF after the sender's EOF.
func (i *LineInput) RecvLine() (string, error) {
	b, err := i.ch.RecvChunked()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (i *LineInput) Close() error { return i.ch.Close() }

// TableOutput renders rows with a compiled pattern.
type TableOutput struct {
	LineOutput
	format *codec.Format
}

func NewTableOutput(ch *channel.Channel, pattern string) (*TableOutput, error) {
	f, err := codec.CompileFormat(pattern)
	if err != nil {
		return nil, err
	}
	return &TableOutput{LineOutput: LineOutput{ch: ch}, format: f}, nil
}

func (o *TableOutput) Format() *codec.Format { return o.format }

// SendHeader sends column names as a comment line.
func (o *TableOutput) SendHeader(names []string) error {
	return o.SendLine(CommentPrefix + " " + strings.Join(names, "\t") + "\n")
}

// FormatRow checks values against the pattern's fields and renders them.
// A complex field fills the two directives of its real/imaginary pair.
func (o *TableOutput) FormatRow(values ...any) (string, error) {
	fields := o.format.Fields()
	if err := codec.CheckArity(fields, len(values), "row"); err != nil {
		return "", err
	}
	args := make([]any, 0, len(values))
	for i, v := range values {
		d := fields[i]
		if _, err := codec.Encode(v, d); err != nil {
			return "", err
		}
		if d.WireKind() == schema.TypeComplex {
			c := reflect.ValueOf(v).Convert(reflect.TypeOf(complex128(0))).Complex()
			args = append(args, real(c), imag(c))
			continue
		}
		args = append(args, v)
	}
	return fmt.Sprintf(o.format.GoPattern(), args...), nil
}

func (o *TableOutput) SendRow(values ...any) error {
	line, err := o.FormatRow(values...)
	if err != nil {
		return err
	}
	return o.SendLine(line)
}

// TableInput parses rows with a compiled pattern.
type TableInput struct {
	LineInput
	format *codec.Format
}

func NewTableInput(ch *channel.Channel, pattern string) (*TableInput, error) {
	f, err := codec.CompileFormat(pattern)
	if err != nil {
		return nil, err
	}
	return &TableInput{LineInput: LineInput{ch: ch}, format: f}, nil
}

func (i *TableInput) Format() *codec.Format { return i.format }

// RecvRow receives the next data line, skipping comment lines, and
// returns one typed value per field.
func (i *TableInput) RecvRow() ([]any, error) {
	for {
		line, err := i.RecvLine()
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(strings.TrimSpace(line), CommentPrefix) {
			continue
		}
		return i.ParseRow(line)
	}
}

// ParseRow scans one line with the receive pattern.
func (i *TableInput) ParseRow(line string) ([]any, error) {
	return Parse(i.format, line)
}

// Parse scans line with f's receive pattern into one typed value per
// field.
func Parse(f *codec.Format, line string) ([]any, error) {
	fields := f.Fields()
	targets := make([]any, 0, len(fields))
	for _, d := range fields {
		targets = append(targets, scanTargets(d)...)
	}
	n, err := fmt.Sscanf(line, f.ReceivePattern(), targets...)
	if err != nil {
		return nil, &protocol.FormatMismatchError{Expected: len(targets), Got: n, Where: "row " + strings.TrimSpace(line)}
	}

	out := make([]any, 0, len(fields))
	next := 0
	for _, d := range fields {
		switch {
		case d.WireKind() == schema.TypeComplex:
			re, im := *targets[next].(*float64), *targets[next+1].(*float64)
			next += 2
			if d.EffectivePrecision() == 64 {
				out = append(out, complex64(complex(re, im)))
			} else {
				out = append(out, complex(re, im))
			}
		case d.WireKind() == schema.TypeBytes && d.Precision == 8:
			out = append(out, []byte(string(*targets[next].(*rune))))
			next++
		default:
			out = append(out, reflect.ValueOf(targets[next]).Elem().Interface())
			next++
		}
	}
	return out, nil
}

// scanTargets allocates the fmt.Sscanf destinations for one field.
func scanTargets(d *schema.Descriptor) []any {
	prec := d.EffectivePrecision()
	switch d.WireKind() {
	case schema.TypeComplex:
		return []any{new(float64), new(float64)}
	case schema.TypeBytes:
		if d.Precision == 8 {
			return []any{new(rune)}
		}
		return []any{new([]byte)}
	case schema.TypeInt:
		switch prec {
		case 8:
			return []any{new(int8)}
		case 16:
			return []any{new(int16)}
		case 32:
			return []any{new(int32)}
		}
		return []any{new(int64)}
	case schema.TypeUint:
		switch prec {
		case 8:
			return []any{new(uint8)}
		case 16:
			return []any{new(uint16)}
		case 32:
			return []any{new(uint32)}
		}
		return []any{new(uint64)}
	case schema.TypeFloat:
		if prec == 32 {
			return []any{new(float32)}
		}
		return []any{new(float64)}
	}
	return []any{new(string)}
}

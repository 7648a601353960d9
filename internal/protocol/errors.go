package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrEOF             = errors.New("protocol: end of stream")
	ErrClosed          = errors.New("protocol: channel closed")
	ErrClosedForSend   = errors.New("protocol: channel closed for send")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds max datagram size")
	ErrWrongDirection  = errors.New("protocol: operation not valid for channel direction")
	ErrIndeterminate   = errors.New("protocol: channel state indeterminate after partial send")
)

// Kind classifies errors crossing the status ABI.
type Kind int

const (
	KindNone Kind = iota
	KindSchema
	KindRecursiveSchema
	KindTypeMismatch
	KindBufferTooSmall
	KindFormatMismatch
	KindChannelNotFound
	KindTransport
	KindRpcClosed
	KindEOF
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSchema:
		return "schema"
	case KindRecursiveSchema:
		return "recursive_schema"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindBufferTooSmall:
		return "buffer_too_small"
	case KindFormatMismatch:
		return "format_mismatch"
	case KindChannelNotFound:
		return "channel_not_found"
	case KindTransport:
		return "transport"
	case KindRpcClosed:
		return "rpc_closed"
	case KindEOF:
		return "eof"
	default:
		return "other"
	}
}

type kinded interface {
	Kind() Kind
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, ErrEOF) {
		return KindEOF
	}
	return KindOther
}

// SchemaError reports a malformed or incomplete type document.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

func (e *SchemaError) Kind() Kind { return KindSchema }

// RecursiveSchemaError reports a reference cycle or unbounded nesting.
type RecursiveSchemaError struct {
	Ref   string
	Chain []string
}

func (e *RecursiveSchemaError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("schema: unbounded recursion at %s", e.Ref)
	}
	return fmt.Sprintf("schema: reference cycle at %s via %v", e.Ref, e.Chain)
}

func (e *RecursiveSchemaError) Kind() Kind { return KindRecursiveSchema }

// TypeMismatchError reports a value that disagrees with its descriptor.
type TypeMismatchError struct {
	Field  int
	Type   string
	Reason string
}

func (e *TypeMismatchError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("codec: %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("codec: field %d (%s): %s", e.Field, e.Type, e.Reason)
}

func (e *TypeMismatchError) Kind() Kind { return KindTypeMismatch }

// BufferTooSmallError reports a fixed-capacity destination that cannot hold
// the decoded value.
type BufferTooSmallError struct {
	Capacity int
	Needed   int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("codec: destination capacity %d < %d", e.Capacity, e.Needed)
}

func (e *BufferTooSmallError) Kind() Kind { return KindBufferTooSmall }

// FormatMismatchError reports an arity disagreement between a compiled
// format and the values or destinations supplied.
type FormatMismatchError struct {
	Expected int
	Got      int
	Where    string
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("format: %s expected %d fields, got %d", e.Where, e.Expected, e.Got)
}

func (e *FormatMismatchError) Kind() Kind { return KindFormatMismatch }

// ChannelNotFoundError reports a name absent from the registry.
type ChannelNotFoundError struct {
	Name string
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("channel: %q is not registered", e.Name)
}

func (e *ChannelNotFoundError) Kind() Kind { return KindChannelNotFound }

// TransportError wraps a send or receive failure at the transport.
type TransportError struct {
	Channel string
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Channel, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Kind() Kind { return KindTransport }

// RpcClosedError reports that the peer ended the stream before a reply
// body arrived.
type RpcClosedError struct {
	Name string
	Err  error
}

func (e *RpcClosedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rpc: %s closed before reply", e.Name)
	}
	return fmt.Sprintf("rpc: %s closed before reply: %v", e.Name, e.Err)
}

func (e *RpcClosedError) Unwrap() error { return e.Err }

func (e *RpcClosedError) Kind() Kind { return KindRpcClosed }

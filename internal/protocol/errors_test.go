package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWalksChain(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{ErrEOF, KindEOF},
		{fmt.Errorf("recv: %w", ErrEOF), KindEOF},
		{&SchemaError{Reason: "x"}, KindSchema},
		{fmt.Errorf("load: %w", &RecursiveSchemaError{Ref: "#/a"}), KindRecursiveSchema},
		{&TransportError{Channel: "c", Op: "send", Err: ErrClosed}, KindTransport},
		{&RpcClosedError{Name: "echo", Err: ErrEOF}, KindRpcClosed},
		{errors.New("other"), KindOther},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestTransportErrorUnwraps(t *testing.T) {
	err := &TransportError{Channel: "c", Op: "recv", Err: ErrClosed}
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed in chain")
	}
	closed := &RpcClosedError{Name: "echo", Err: err}
	var te *TransportError
	if !errors.As(closed, &te) || te.Op != "recv" {
		t.Fatalf("expected transport error under rpc closed, got %v", closed)
	}
}

func TestStatus(t *testing.T) {
	if got := Status(3, nil); got != 3 {
		t.Fatalf("Status(3, nil) = %d", got)
	}
	if got := Status(-1, nil); got != StatusOK {
		t.Fatalf("Status(-1, nil) = %d", got)
	}
	if got := Status(0, fmt.Errorf("wrapped: %w", ErrEOF)); got != StatusEOF {
		t.Fatalf("EOF status = %d", got)
	}
	if got := Status(2, &BufferTooSmallError{Capacity: 1, Needed: 2}); got != StatusError {
		t.Fatalf("error status = %d", got)
	}
}

package tlv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/typechan/internal/protocol/schema"
	"github.com/danmuck/typechan/internal/testutil/testlog"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	testlog.Start(t)
	in := []Field{
		{ID: 0, Type: TypeString, Value: []byte("field-0")},
		{ID: 9999, Type: 0xEE, Value: []byte{0xAA, 0xBB}}, // unknown kind code
		{ID: 2, Type: TypeNull},
	}
	b, err := EncodeFields(in)
	if err != nil {
		t.Fatalf("encode fields: %v", err)
	}
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != 0xEE || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
	if len(out[2].Value) != 0 {
		t.Fatalf("empty value grew: %+v", out[2])
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	testlog.Start(t)
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestDecodeFieldsEmptyPayload(t *testing.T) {
	testlog.Start(t)
	out, err := DecodeFields(nil)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no fields, got %d", len(out))
	}
}

func TestCodeFor(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		d    *schema.Descriptor
		want uint8
	}{
		{schema.Scalar(schema.TypeInteger, 0), TypeInt},
		{schema.Scalar(schema.TypeString, 0), TypeString},
		{&schema.Descriptor{Kind: schema.TypeScalar, Subtype: schema.TypeComplex}, TypeComplex},
		{schema.Array(schema.TypeFloat, 32, 3), Type1DArray},
		{&schema.Descriptor{}, TypeAny},
	}
	for _, tc := range cases {
		if got := CodeFor(tc.d); got != tc.want {
			t.Fatalf("CodeFor(%s) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestMustType(t *testing.T) {
	testlog.Start(t)
	f := Field{ID: 3, Type: TypeFloat}
	if err := MustType(f, TypeFloat); err != nil {
		t.Fatalf("unexpected mismatch: %v", err)
	}
	if err := MustType(f, TypeInt); err == nil {
		t.Fatalf("expected mismatch")
	}
}

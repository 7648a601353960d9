package codec

import (
	"encoding/binary"
	"testing"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/protocol/schema"
	"github.com/danmuck/typechan/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, doc map[string]any) *schema.Descriptor {
	t.Helper()
	d, err := schema.Load(doc)
	require.NoError(t, err)
	return d
}

func roundTrip(t *testing.T, v any, d *schema.Descriptor) any {
	t.Helper()
	b, err := Encode(v, d)
	require.NoError(t, err)
	out, n, err := Decode(b, d)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	return out
}

func TestRoundTripScalars(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		d    *schema.Descriptor
		in   any
		want any
	}{
		{"int8", schema.Scalar(schema.TypeInt, 8), int8(-5), int8(-5)},
		{"int16", schema.Scalar(schema.TypeInt, 16), int16(-300), int16(-300)},
		{"int32", schema.Scalar(schema.TypeInt, 32), int32(41), int32(41)},
		{"int default", schema.Scalar(schema.TypeInt, 0), -1 << 40, int64(-1 << 40)},
		{"integer alias", schema.Scalar(schema.TypeInteger, 0), 7, int64(7)},
		{"uint8", schema.Scalar(schema.TypeUint, 8), uint8(255), uint8(255)},
		{"uint64", schema.Scalar(schema.TypeUint, 64), uint64(1) << 63, uint64(1) << 63},
		{"float32", schema.Scalar(schema.TypeFloat, 32), float32(1.5), float32(1.5)},
		{"float64", schema.Scalar(schema.TypeFloat, 0), 3.25, 3.25},
		{"number alias", schema.Scalar(schema.TypeNumber, 0), -0.5, -0.5},
		{"complex64", schema.Scalar(schema.TypeComplex, 64), complex64(1 + 2i), complex64(1 + 2i)},
		{"complex128", schema.Scalar(schema.TypeComplex, 0), 3 - 4i, 3 - 4i},
		{"bool", schema.Scalar(schema.TypeBoolean, 0), true, true},
		{"null", schema.Scalar(schema.TypeNull, 0), nil, nil},
		{"bytes", schema.Scalar(schema.TypeBytes, 0), []byte{0, 1, 2}, []byte{0, 1, 2}},
		{"empty bytes", schema.Scalar(schema.TypeBytes, 0), []byte{}, []byte{}},
		{"unicode", schema.Scalar(schema.TypeUnicode, 0), "héllo", "héllo"},
		{"string alias", schema.Scalar(schema.TypeString, 0), "x", "x"},
		{"function", schema.Scalar(schema.TypeFunction, 0), "pkg.handler", "pkg.handler"},
		{"scalar", &schema.Descriptor{Kind: schema.TypeScalar, Subtype: schema.TypeFloat, Precision: 32}, float32(2), float32(2)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, roundTrip(t, tc.in, tc.d))
		})
	}
}

func TestScalarWireForm(t *testing.T) {
	testlog.Start(t)
	b, err := Encode(int32(42), schema.Scalar(schema.TypeInt, 32))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 42}, b)

	b, err = Encode("ab", schema.Scalar(schema.TypeUnicode, 0))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 2, 'a', 'b'}, b)

	b, err = Encode(complex64(complex(1, 0)), schema.Scalar(schema.TypeComplex, 64))
	require.NoError(t, err)
	require.Equal(t, []byte{0x3f, 0x80, 0, 0, 0, 0, 0, 0}, b)
}

func TestEncodeMismatch(t *testing.T) {
	testlog.Start(t)
	maxLen := load(t, map[string]any{"type": "unicode", "maxLength": 3})
	bounded := load(t, map[string]any{"type": "int", "minimum": 0, "maximum": 10, "exclusiveMaximum": true})
	pattern := load(t, map[string]any{"type": "string", "pattern": "^[a-z]+$"})
	enum := load(t, map[string]any{"type": "int", "enum": []any{1, 2, 3}})

	cases := []struct {
		name string
		v    any
		d    *schema.Descriptor
	}{
		{"string for int", "1", schema.Scalar(schema.TypeInt, 32)},
		{"overflow int8", 200, schema.Scalar(schema.TypeInt, 8)},
		{"negative uint", -1, schema.Scalar(schema.TypeUint, 16)},
		{"float for bool", 1.0, schema.Scalar(schema.TypeBoolean, 0)},
		{"too long", "abcd", maxLen},
		{"exclusive max", 10, bounded},
		{"below min", -1, bounded},
		{"pattern", "ABC", pattern},
		{"enum", 4, enum},
		{"precision", "abc", schema.Scalar(schema.TypeUnicode, 64)},
		{"odd precision", 1, schema.Scalar(schema.TypeInt, 12)},
		{"empty function", "", schema.Scalar(schema.TypeFunction, 0)},
		{"overflow float32", 1e300, schema.Scalar(schema.TypeFloat, 32)},
		{"overflow complex64 real", complex(1e300, 0), schema.Scalar(schema.TypeComplex, 64)},
		{"overflow complex64 imag", complex(1, -1e300), schema.Scalar(schema.TypeComplex, 64)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.v, tc.d)
			require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err), "err=%v", err)
		})
	}
}

func TestOneDArray(t *testing.T) {
	testlog.Start(t)
	d := load(t, map[string]any{"type": "1darray", "subtype": "float", "precision": 32, "shape": []any{3}})
	require.Equal(t, 3, d.Length)

	out := roundTrip(t, []float32{1, 2, 3}, d)
	require.Equal(t, []float32{1, 2, 3}, out)

	_, err := Encode([]float32{1, 2}, d)
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))

	strs := schema.Array(schema.TypeUnicode, 0, 0)
	require.Equal(t, []string{"a", "", "ccc"}, roundTrip(t, []string{"a", "", "ccc"}, strs))

	ints := schema.Array(schema.TypeInt, 16, 0)
	require.Equal(t, []int16{-1, 0, 1}, roundTrip(t, []any{-1, 0, 1}, ints))
}

func TestNDArray(t *testing.T) {
	testlog.Start(t)
	d := load(t, map[string]any{"type": "ndarray", "subtype": "int", "precision": 32, "shape": []any{2, 3}})
	in := NDArray{Shape: []int{2, 3}, Data: []int32{1, 2, 3, 4, 5, 6}}
	out := roundTrip(t, in, d).(NDArray)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("ndarray mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, int32(6), out.At(1, 2))
	require.Equal(t, int32(4), out.At(1, 0))

	_, err := Encode(NDArray{Shape: []int{3, 2}, Data: []int32{1, 2, 3, 4, 5, 6}}, d)
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))
	_, err = Encode(NDArray{Shape: []int{2, 3}, Data: []int32{1, 2, 3}}, d)
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))

	flat := roundTrip(t, []int32{6, 5, 4, 3, 2, 1}, d).(NDArray)
	require.Equal(t, []int{2, 3}, flat.Shape)

	open := &schema.Descriptor{Kind: schema.TypeNDArray, Subtype: schema.TypeComplex}
	c := NDArray{Shape: []int{1, 2, 1}, Data: []complex128{1i, 2}}
	require.Equal(t, c, roundTrip(t, c, open))
}

func TestArrayAndObject(t *testing.T) {
	testlog.Start(t)
	tuple := load(t, map[string]any{
		"type":            "array",
		"items":           []any{map[string]any{"type": "int", "precision": 8}, map[string]any{"type": "unicode"}},
		"additionalItems": false,
	})
	require.Equal(t, []any{int8(3), "three"}, roundTrip(t, []any{3, "three"}, tuple))
	_, err := Encode([]any{3, "three", true}, tuple)
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))

	obj := load(t, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":   map[string]any{"type": "uint", "precision": 16},
			"tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"id"},
	})
	in := map[string]any{"id": 9, "tags": []string{"a", "b"}, "extra": 1.5}
	want := map[string]any{"id": uint16(9), "tags": []any{"a", "b"}, "extra": 1.5}
	if diff := cmp.Diff(want, roundTrip(t, in, obj)); diff != "" {
		t.Fatalf("object mismatch (-want +got):\n%s", diff)
	}
	_, err = Encode(map[string]any{"tags": []any{}}, obj)
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))
}

func TestRecursiveDescriptor(t *testing.T) {
	testlog.Start(t)
	d := load(t, map[string]any{
		"type":  "array",
		"items": map[string]any{"$ref": "#"},
	})
	in := []any{[]any{}, []any{[]any{}}}
	require.Equal(t, in, roundTrip(t, in, d))
}

func TestMeshes(t *testing.T) {
	testlog.Start(t)
	obj := &ObjMesh{
		Vertices: [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Faces:    [][]int{{0, 1, 2}},
	}
	out := roundTrip(t, obj, schema.Scalar(schema.TypeObj, 0)).(*ObjMesh)
	require.Equal(t, obj.Vertices, out.Vertices)
	require.Equal(t, obj.Faces, out.Faces)

	ply := PlyMesh{
		Vertices: [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		Colors:   [][]uint8{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {9, 9, 9}},
		Faces:    [][]int{{0, 1, 3, 2}},
	}
	gotPly := roundTrip(t, ply, schema.Scalar(schema.TypePly, 0)).(*PlyMesh)
	require.Equal(t, ply.Colors, gotPly.Colors)

	_, err := Encode(&ObjMesh{Vertices: [][]float64{{0, 0, 0}}, Faces: [][]int{{0, 1, 2}}}, schema.Scalar(schema.TypeObj, 0))
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))
	_, err = Encode(ply, schema.Scalar(schema.TypeObj, 0))
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))
}

func TestSchemaAndAny(t *testing.T) {
	testlog.Start(t)
	doc := map[string]any{"type": "1darray", "subtype": "int", "length": int64(4)}
	require.Equal(t, doc, roundTrip(t, doc, schema.Scalar(schema.TypeSchema, 0)))

	_, err := Encode(map[string]any{"type": "bogus"}, schema.Scalar(schema.TypeSchema, 0))
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))

	anything := &schema.Descriptor{}
	v := map[string]any{"n": int64(3), "f": 1.5, "s": "x", "l": []any{true, nil}}
	require.Equal(t, v, roundTrip(t, v, anything))
}

func TestDecodeTruncated(t *testing.T) {
	testlog.Start(t)
	d := schema.Array(schema.TypeFloat, 64, 0)
	b, err := Encode([]float64{1, 2, 3}, d)
	require.NoError(t, err)
	_, _, err = Decode(b[:len(b)-1], d)
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))

	_, _, err = Decode([]byte{0xff, 0xff, 0xff, 0xff}, schema.Scalar(schema.TypeUnicode, 0))
	require.Error(t, err)
}

func TestDecodeBoundsZeroWidthItems(t *testing.T) {
	testlog.Start(t)
	nulls := load(t, map[string]any{"type": "array", "items": map[string]any{"type": "null"}})

	huge := binary.BigEndian.AppendUint32(nil, 20_000_000)
	_, _, err := Decode(huge, nulls)
	require.Equal(t, protocol.KindTypeMismatch, protocol.KindOf(err))

	b, err := Encode([]any{nil, nil, nil}, nulls)
	require.NoError(t, err)
	v, n, err := Decode(b, nulls)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []any{nil, nil, nil}, v)
}

func TestComplex64RoundTripInRange(t *testing.T) {
	testlog.Start(t)
	d := schema.Scalar(schema.TypeComplex, 64)
	b, err := Encode(complex(1.5, -2.25), d)
	require.NoError(t, err)
	v, _, err := Decode(b, d)
	require.NoError(t, err)
	require.Equal(t, complex64(complex(1.5, -2.25)), v)
}

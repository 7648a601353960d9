package codec

import (
	"reflect"
	"slices"

	"github.com/danmuck/typechan/internal/protocol/schema"
	"github.com/samber/lo"
)

// NDArray is a row-major N-dimensional array. Data is a typed slice
// ([]float64, []int32, ...) holding product(Shape) elements.
type NDArray struct {
	Shape []int
	Data  any
}

// Len is the element count implied by Shape.
func (a NDArray) Len() int {
	return lo.Reduce(a.Shape, func(acc, n, _ int) int { return acc * n }, 1)
}

// At returns the element at the given index.
func (a NDArray) At(index ...int) any {
	if len(index) != len(a.Shape) {
		return nil
	}
	flat := 0
	for i, n := range index {
		if n < 0 || n >= a.Shape[i] {
			return nil
		}
		flat = flat*a.Shape[i] + n
	}
	return reflect.ValueOf(a.Data).Index(flat).Interface()
}

func elementSpec(d *schema.Descriptor) (string, int, error) {
	kind := d.ElementKind()
	if kind == "" {
		return "", 0, mismatch(d, "array without subtype")
	}
	prec := d.EffectivePrecision()
	if err := checkPrecision(d, kind, prec); err != nil {
		return "", 0, err
	}
	return kind, prec, nil
}

func appendElements(out []byte, rv reflect.Value, kind string, prec int, d *schema.Descriptor) ([]byte, error) {
	var err error
	for i := 0; i < rv.Len(); i++ {
		if out, err = appendScalar(out, kind, prec, rv.Index(i).Interface(), d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readElements(r *reader, n int, kind string, prec int, d *schema.Descriptor) (any, error) {
	need := n * 4
	if w := width(kind, prec); w > 0 {
		need = n * w
	}
	if need < 0 || need > r.remaining() {
		return nil, ErrTruncated
	}
	out := reflect.MakeSlice(reflect.SliceOf(elemType(kind, prec)), n, n)
	for i := 0; i < n; i++ {
		v, err := readScalar(r, kind, prec, d)
		if err != nil {
			return nil, err
		}
		out.Index(i).Set(reflect.ValueOf(v))
	}
	return out.Interface(), nil
}

func append1D(out []byte, v any, d *schema.Descriptor) ([]byte, error) {
	kind, prec, err := elementSpec(d)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, mismatch(d, "expected slice, got %T", v)
	}
	n := rv.Len()
	if d.Length > 0 && n != d.Length {
		return nil, mismatch(d, "%d elements, length is %d", n, d.Length)
	}
	if err := checkItems(d, n); err != nil {
		return nil, err
	}
	if out, err = putU32(out, n); err != nil {
		return nil, err
	}
	return appendElements(out, rv, kind, prec, d)
}

func read1D(r *reader, d *schema.Descriptor) (any, error) {
	kind, prec, err := elementSpec(d)
	if err != nil {
		return nil, err
	}
	n32, err := r.u32()
	if err != nil {
		return nil, err
	}
	n := int(n32)
	if d.Length > 0 && n != d.Length {
		return nil, mismatch(d, "%d elements, length is %d", n, d.Length)
	}
	if err := checkItems(d, n); err != nil {
		return nil, err
	}
	return readElements(r, n, kind, prec, d)
}

func asNDArray(v any, d *schema.Descriptor) (NDArray, error) {
	switch a := v.(type) {
	case NDArray:
		return a, nil
	case *NDArray:
		if a == nil {
			return NDArray{}, mismatch(d, "nil ndarray")
		}
		return *a, nil
	}
	rv := reflect.ValueOf(v)
	if len(d.Shape) > 0 && rv.Kind() == reflect.Slice {
		return NDArray{Shape: d.Shape, Data: v}, nil
	}
	return NDArray{}, mismatch(d, "expected NDArray, got %T", v)
}

func appendND(out []byte, v any, d *schema.Descriptor) ([]byte, error) {
	kind, prec, err := elementSpec(d)
	if err != nil {
		return nil, err
	}
	a, err := asNDArray(v, d)
	if err != nil {
		return nil, err
	}
	if len(a.Shape) == 0 {
		return nil, mismatch(d, "ndarray without shape")
	}
	if len(d.Shape) > 0 && !slices.Equal(a.Shape, d.Shape) {
		return nil, mismatch(d, "shape %v, expected %v", a.Shape, d.Shape)
	}
	rv := reflect.ValueOf(a.Data)
	if rv.Kind() != reflect.Slice {
		return nil, mismatch(d, "ndarray data must be a slice, got %T", a.Data)
	}
	if rv.Len() != a.Len() {
		return nil, mismatch(d, "%d elements, shape %v needs %d", rv.Len(), a.Shape, a.Len())
	}
	if out, err = putU32(out, len(a.Shape)); err != nil {
		return nil, err
	}
	for _, dim := range a.Shape {
		if dim < 1 {
			return nil, mismatch(d, "dimension %d < 1", dim)
		}
		if out, err = putU32(out, dim); err != nil {
			return nil, err
		}
	}
	return appendElements(out, rv, kind, prec, d)
}

func readND(r *reader, d *schema.Descriptor) (any, error) {
	kind, prec, err := elementSpec(d)
	if err != nil {
		return nil, err
	}
	ndim, err := r.u32()
	if err != nil {
		return nil, err
	}
	if ndim == 0 || int(ndim) > r.remaining()/4 {
		return nil, mismatch(d, "invalid ndim %d", ndim)
	}
	shape := make([]int, ndim)
	total := 1
	for i := range shape {
		dim, err := r.u32()
		if err != nil {
			return nil, err
		}
		if dim == 0 {
			return nil, mismatch(d, "dimension %d is zero", i)
		}
		shape[i] = int(dim)
		total *= shape[i]
		if total > r.remaining() {
			return nil, ErrTruncated
		}
	}
	if len(d.Shape) > 0 && !slices.Equal(shape, d.Shape) {
		return nil, mismatch(d, "shape %v, expected %v", shape, d.Shape)
	}
	data, err := readElements(r, total, kind, prec, d)
	if err != nil {
		return nil, err
	}
	return NDArray{Shape: shape, Data: data}, nil
}

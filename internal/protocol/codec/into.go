package codec

import (
	"reflect"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/protocol/schema"
)

var ndarrayType = reflect.TypeOf(NDArray{})

// Pending is a decoded value that has passed every destination check but
// has not been written yet.
type Pending struct {
	target reflect.Value
	value  reflect.Value
	reuse  bool
	nd     *NDArray
	shape  []int
}

// Commit writes the value into its destination. Reused destinations keep
// their backing array; others take the freshly decoded allocation.
func (p *Pending) Commit() {
	if p == nil {
		return
	}
	if p.nd != nil {
		data := p.value
		if p.reuse {
			data = reflect.ValueOf(p.nd.Data).Slice(0, p.value.Len())
			reflect.Copy(data, p.value)
		}
		*p.nd = NDArray{Shape: p.shape, Data: data.Interface()}
		return
	}
	if p.reuse {
		s := p.target.Slice(0, p.value.Len())
		reflect.Copy(s, p.value)
		p.target.Set(s)
		return
	}
	p.target.Set(p.value)
}

// DecodeInto decodes one value from data into the pointer dst.
//
// Slice destinations (*[]byte, *[]T, *NDArray data) have a capacity. A
// value that fits is copied into the existing backing array. One that
// does not fails with *protocol.BufferTooSmallError unless realloc is set,
// in which case the destination takes a new allocation and any alias of
// the old slice must not be read again. *string and *any destinations
// always take the decoded value.
func DecodeInto(data []byte, d *schema.Descriptor, dst any, realloc bool) (int, error) {
	p, n, err := Prepare(data, d, dst, realloc)
	if err != nil {
		return 0, err
	}
	p.Commit()
	return n, nil
}

// Prepare is DecodeInto without the final write.
func Prepare(data []byte, d *schema.Descriptor, dst any, realloc bool) (*Pending, int, error) {
	v, n, err := Decode(data, d)
	if err != nil {
		return nil, 0, err
	}
	p, err := bind(v, d, dst, realloc)
	if err != nil {
		return nil, 0, err
	}
	return p, n, nil
}

func cannot(d *schema.Descriptor, v, dst any) error {
	return mismatch(d, "cannot decode %T into %T", v, dst)
}

func bind(v any, d *schema.Descriptor, dst any, realloc bool) (*Pending, error) {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, mismatch(d, "destination must be a non-nil pointer, got %T", dst)
	}
	target := rv.Elem()

	if target.Type() == ndarrayType {
		a, ok := v.(NDArray)
		if !ok {
			return nil, cannot(d, v, dst)
		}
		return bindND(a, dst.(*NDArray), d, realloc)
	}

	if v == nil {
		switch target.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map:
			return &Pending{target: target, value: reflect.Zero(target.Type())}, nil
		}
		return nil, cannot(d, v, dst)
	}
	value := reflect.ValueOf(v)

	if target.Kind() == reflect.Slice {
		if s, isStr := v.(string); isStr && target.Type().Elem().Kind() == reflect.Uint8 {
			value = reflect.ValueOf([]byte(s)).Convert(target.Type())
		}
		if value.Type() == target.Type() {
			return bindSlice(value, target, d, realloc)
		}
	}
	if b, isBytes := v.([]byte); isBytes && target.Kind() == reflect.String {
		value = reflect.ValueOf(string(b)).Convert(target.Type())
	}
	if value.Type().AssignableTo(target.Type()) {
		return &Pending{target: target, value: value}, nil
	}
	if converted, ok := convertNumber(value, target.Type()); ok {
		return &Pending{target: target, value: converted}, nil
	}
	if value.Kind() == reflect.Pointer && value.Elem().Type().AssignableTo(target.Type()) {
		return &Pending{target: target, value: value.Elem()}, nil
	}
	return nil, cannot(d, v, dst)
}

func bindSlice(value, target reflect.Value, d *schema.Descriptor, realloc bool) (*Pending, error) {
	needed, capacity := value.Len(), target.Cap()
	if needed <= capacity {
		return &Pending{target: target, value: value, reuse: true}, nil
	}
	if !realloc {
		return nil, &protocol.BufferTooSmallError{Capacity: capacity, Needed: needed}
	}
	return &Pending{target: target, value: value}, nil
}

func bindND(a NDArray, dst *NDArray, d *schema.Descriptor, realloc bool) (*Pending, error) {
	value := reflect.ValueOf(a.Data)
	p := &Pending{value: value, nd: dst, shape: a.Shape}
	capacity := 0
	if dst.Data != nil {
		old := reflect.ValueOf(dst.Data)
		if old.Kind() != reflect.Slice {
			return nil, mismatch(d, "ndarray destination data is %T", dst.Data)
		}
		if old.Type() != value.Type() {
			if !realloc {
				return nil, mismatch(d, "cannot decode %s elements into %T", value.Type().Elem(), dst.Data)
			}
			return p, nil
		}
		capacity = old.Cap()
	}
	if value.Len() <= capacity {
		p.reuse = true
		return p, nil
	}
	if !realloc {
		return nil, &protocol.BufferTooSmallError{Capacity: capacity, Needed: value.Len()}
	}
	return p, nil
}

// convertNumber widens or narrows within one numeric family when the
// value fits the destination type.
func convertNumber(value reflect.Value, to reflect.Type) (reflect.Value, bool) {
	out := reflect.New(to).Elem()
	switch value.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch to.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if out.OverflowInt(value.Int()) {
				return reflect.Value{}, false
			}
			out.SetInt(value.Int())
			return out, true
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch to.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if out.OverflowUint(value.Uint()) {
				return reflect.Value{}, false
			}
			out.SetUint(value.Uint())
			return out, true
		}
	case reflect.Float32, reflect.Float64:
		switch to.Kind() {
		case reflect.Float32, reflect.Float64:
			if out.OverflowFloat(value.Float()) {
				return reflect.Value{}, false
			}
			out.SetFloat(value.Float())
			return out, true
		}
	case reflect.Complex64, reflect.Complex128:
		switch to.Kind() {
		case reflect.Complex64, reflect.Complex128:
			if out.OverflowComplex(value.Complex()) {
				return reflect.Value{}, false
			}
			out.SetComplex(value.Complex())
			return out, true
		}
	}
	return reflect.Value{}, false
}

// Package codec encodes values against schema descriptors. Every kind has
// a fixed big-endian wire form; variable-length parts carry a u32 prefix
// so encoded values are self-delimiting inside composites.
package codec

import (
	"errors"
	"reflect"
	"sort"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/protocol/schema"
)

// Encode serializes v as described by d.
func Encode(v any, d *schema.Descriptor) ([]byte, error) {
	return Append(nil, v, d)
}

// Append serializes v as described by d onto out.
func Append(out []byte, v any, d *schema.Descriptor) ([]byte, error) {
	if d == nil {
		return nil, &protocol.TypeMismatchError{Field: -1, Type: "<nil>", Reason: "no descriptor"}
	}
	out, err := appendValue(out, v, d)
	if errors.Is(err, ErrTooLong) {
		return nil, mismatch(d, "%v", err)
	}
	return out, err
}

// Decode parses one value described by d from the front of data and
// returns it with the number of bytes consumed.
func Decode(data []byte, d *schema.Descriptor) (any, int, error) {
	if d == nil {
		return nil, 0, &protocol.TypeMismatchError{Field: -1, Type: "<nil>", Reason: "no descriptor"}
	}
	r := &reader{buf: data}
	v, err := readValue(r, d)
	if errors.Is(err, ErrTruncated) {
		return nil, 0, mismatch(d, "%v", err)
	}
	if err != nil {
		return nil, 0, err
	}
	return v, r.off, nil
}

func appendValue(out []byte, v any, d *schema.Descriptor) ([]byte, error) {
	switch kind := d.WireKind(); kind {
	case "":
		return appendAny(out, v, d)
	case schema.TypeScalar:
		return nil, mismatch(d, "scalar without subtype")
	case schema.Type1DArray:
		return append1D(out, v, d)
	case schema.TypeNDArray:
		return appendND(out, v, d)
	case schema.TypeArray:
		return appendArray(out, v, d)
	case schema.TypeObject:
		return appendObject(out, v, d)
	case schema.TypeObj, schema.TypePly:
		return appendMesh(out, v, d)
	case schema.TypeSchema:
		return appendSchema(out, v, d)
	default:
		return appendScalar(out, kind, d.EffectivePrecision(), v, d)
	}
}

func readValue(r *reader, d *schema.Descriptor) (any, error) {
	switch kind := d.WireKind(); kind {
	case "":
		return readAny(r, d)
	case schema.TypeScalar:
		return nil, mismatch(d, "scalar without subtype")
	case schema.Type1DArray:
		return read1D(r, d)
	case schema.TypeNDArray:
		return readND(r, d)
	case schema.TypeArray:
		return readArray(r, d)
	case schema.TypeObject:
		return readObject(r, d)
	case schema.TypeObj, schema.TypePly:
		return readMesh(r, d)
	case schema.TypeSchema:
		return readSchema(r, d)
	default:
		return readScalar(r, kind, d.EffectivePrecision(), d)
	}
}

// MaxEmptyItems bounds how many zero-width items (null) one decoded array
// may hold, since their count is not backed by input bytes.
const MaxEmptyItems = 1 << 16

func checkItems(d *schema.Descriptor, n int) error {
	if n < d.MinItems {
		return mismatch(d, "%d items below minItems %d", n, d.MinItems)
	}
	if d.MaxItems != nil && n > *d.MaxItems {
		return mismatch(d, "%d items above maxItems %d", n, *d.MaxItems)
	}
	return nil
}

// itemDescriptor picks the schema for item i of a generic array. A nil
// result with a nil error means the item is untyped.
func itemDescriptor(d *schema.Descriptor, i int) (*schema.Descriptor, error) {
	if len(d.TupleItems) > 0 {
		if i < len(d.TupleItems) {
			return d.TupleItems[i], nil
		}
		if !d.AllowAdditionalItems {
			return nil, mismatch(d, "additional item %d not allowed", i)
		}
		return d.AdditionalItems, nil
	}
	return d.Items, nil
}

var anyDescriptor = &schema.Descriptor{AllowAdditionalItems: true, AllowAdditionalProperties: true}

func orAny(d *schema.Descriptor) *schema.Descriptor {
	if d == nil {
		return anyDescriptor
	}
	return d
}

func appendArray(out []byte, v any, d *schema.Descriptor) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, mismatch(d, "expected list, got %T", v)
	}
	n := rv.Len()
	if err := checkItems(d, n); err != nil {
		return nil, err
	}
	if len(d.TupleItems) > 0 && n < len(d.TupleItems) {
		return nil, mismatch(d, "%d items, tuple needs %d", n, len(d.TupleItems))
	}
	out, err := putU32(out, n)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		item, err := itemDescriptor(d, i)
		if err != nil {
			return nil, err
		}
		if out, err = appendValue(out, rv.Index(i).Interface(), orAny(item)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readArray(r *reader, d *schema.Descriptor) (any, error) {
	n32, err := r.u32()
	if err != nil {
		return nil, err
	}
	n := int(n32)
	if err := checkItems(d, n); err != nil {
		return nil, err
	}
	if len(d.TupleItems) > 0 && n < len(d.TupleItems) {
		return nil, mismatch(d, "%d items, tuple needs %d", n, len(d.TupleItems))
	}
	out := make([]any, 0, min(n, r.remaining()))
	empty := 0
	for i := 0; i < n; i++ {
		item, err := itemDescriptor(d, i)
		if err != nil {
			return nil, err
		}
		before := r.off
		v, err := readValue(r, orAny(item))
		if err != nil {
			return nil, err
		}
		if r.off == before {
			if empty++; empty > MaxEmptyItems {
				return nil, mismatch(d, "%d items without wire bytes exceed limit %d", n, MaxEmptyItems)
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func propertyDescriptor(d *schema.Descriptor, name string) (*schema.Descriptor, error) {
	if p, ok := d.Properties[name]; ok {
		return p, nil
	}
	for pattern, p := range d.PatternProperties {
		if matchPattern(pattern, name) {
			return p, nil
		}
	}
	if !d.AllowAdditionalProperties {
		return nil, mismatch(d, "additional property %q not allowed", name)
	}
	return d.AdditionalProperties, nil
}

func checkProperties(d *schema.Descriptor, keys map[string]bool) error {
	n := len(keys)
	if n < d.MinProperties {
		return mismatch(d, "%d properties below minProperties %d", n, d.MinProperties)
	}
	if d.MaxProperties != nil && n > *d.MaxProperties {
		return mismatch(d, "%d properties above maxProperties %d", n, *d.MaxProperties)
	}
	for _, name := range d.Required {
		if !keys[name] {
			return mismatch(d, "missing required property %q", name)
		}
	}
	return nil
}

func appendObject(out []byte, v any, d *schema.Descriptor) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, mismatch(d, "expected map with string keys, got %T", v)
	}
	keys := make([]string, 0, rv.Len())
	present := make(map[string]bool, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
		present[k.String()] = true
	}
	sort.Strings(keys)
	if err := checkProperties(d, present); err != nil {
		return nil, err
	}
	out, err := putU32(out, len(keys))
	if err != nil {
		return nil, err
	}
	for _, name := range keys {
		prop, err := propertyDescriptor(d, name)
		if err != nil {
			return nil, err
		}
		if out, err = putBlob(out, []byte(name)); err != nil {
			return nil, err
		}
		value := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key())).Interface()
		if out, err = appendValue(out, value, orAny(prop)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readObject(r *reader, d *schema.Descriptor) (any, error) {
	n32, err := r.u32()
	if err != nil {
		return nil, err
	}
	n := int(n32)
	if n > r.remaining()/4 {
		return nil, ErrTruncated
	}
	out := make(map[string]any, n)
	present := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		key, err := r.blob()
		if err != nil {
			return nil, err
		}
		name := string(key)
		prop, err := propertyDescriptor(d, name)
		if err != nil {
			return nil, err
		}
		if out[name], err = readValue(r, orAny(prop)); err != nil {
			return nil, err
		}
		present[name] = true
	}
	if err := checkProperties(d, present); err != nil {
		return nil, err
	}
	return out, nil
}

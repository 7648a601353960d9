package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/protocol/schema"
)

func mismatch(d *schema.Descriptor, format string, args ...any) error {
	return &protocol.TypeMismatchError{Field: -1, Type: d.String(), Reason: fmt.Sprintf(format, args...)}
}

func intBits(prec int) bool {
	return prec == 8 || prec == 16 || prec == 32 || prec == 64
}

func toInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	default:
		return 0, false
	}
}

func toUint64(v any) (uint64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	if n, ok := toUint64(v); ok {
		return float64(n), true
	}
	return 0, false
}

func toComplex128(v any) (complex128, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Complex64, reflect.Complex128:
		return rv.Complex(), true
	}
	if f, ok := toFloat64(v); ok {
		return complex(f, 0), true
	}
	return 0, false
}

func appendUint(out []byte, u uint64, prec int) []byte {
	switch prec {
	case 8:
		return append(out, byte(u))
	case 16:
		return binary.BigEndian.AppendUint16(out, uint16(u))
	case 32:
		return binary.BigEndian.AppendUint32(out, uint32(u))
	default:
		return binary.BigEndian.AppendUint64(out, u)
	}
}

func readUint(r *reader, prec int) (uint64, error) {
	b, err := r.take(prec / 8)
	if err != nil {
		return 0, err
	}
	switch prec {
	case 8:
		return uint64(b[0]), nil
	case 16:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 32:
		return uint64(binary.BigEndian.Uint32(b)), nil
	default:
		return binary.BigEndian.Uint64(b), nil
	}
}

func appendFloat(out []byte, f float64, prec int) []byte {
	if prec == 32 {
		return binary.BigEndian.AppendUint32(out, math.Float32bits(float32(f)))
	}
	return binary.BigEndian.AppendUint64(out, math.Float64bits(f))
}

func readFloat(r *reader, prec int) (float64, error) {
	if prec == 32 {
		b, err := r.take(4)
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	}
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// width is the fixed encoded size of one element, or 0 when the element
// is length-prefixed.
func width(kind string, prec int) int {
	switch kind {
	case schema.TypeInt, schema.TypeUint, schema.TypeFloat, schema.TypeComplex:
		return prec / 8
	case schema.TypeBoolean:
		return 1
	default:
		return 0
	}
}

func checkPrecision(d *schema.Descriptor, kind string, prec int) error {
	switch kind {
	case schema.TypeInt, schema.TypeUint:
		if !intBits(prec) {
			return mismatch(d, "unsupported integer precision %d", prec)
		}
	case schema.TypeFloat:
		if prec != 32 && prec != 64 {
			return mismatch(d, "unsupported float precision %d", prec)
		}
	case schema.TypeComplex:
		if prec != 64 && prec != 128 {
			return mismatch(d, "unsupported complex precision %d", prec)
		}
	}
	return nil
}

func checkRange(d *schema.Descriptor, f float64) error {
	if d.Minimum != nil {
		if f < *d.Minimum || (d.ExclusiveMinimum && f == *d.Minimum) {
			return mismatch(d, "%v below minimum %v", f, *d.Minimum)
		}
	}
	if d.Maximum != nil {
		if f > *d.Maximum || (d.ExclusiveMaximum && f == *d.Maximum) {
			return mismatch(d, "%v above maximum %v", f, *d.Maximum)
		}
	}
	return nil
}

func checkEnum(d *schema.Descriptor, v any) error {
	if len(d.Enum) == 0 {
		return nil
	}
	for _, allowed := range d.Enum {
		if a, ok := toFloat64(allowed); ok {
			if f, ok := toFloat64(v); ok && a == f {
				return nil
			}
			continue
		}
		if reflect.DeepEqual(allowed, v) {
			return nil
		}
	}
	return mismatch(d, "%v not in enum", v)
}

func checkLength(d *schema.Descriptor, n int) error {
	if n < d.MinLength {
		return mismatch(d, "length %d below minLength %d", n, d.MinLength)
	}
	if d.MaxLength != nil && n > *d.MaxLength {
		return mismatch(d, "length %d above maxLength %d", n, *d.MaxLength)
	}
	return nil
}

// appendScalar encodes one element of kind at prec. d supplies the
// constraints and the label for errors.
func appendScalar(out []byte, kind string, prec int, v any, d *schema.Descriptor) ([]byte, error) {
	if err := checkPrecision(d, kind, prec); err != nil {
		return nil, err
	}
	switch kind {
	case schema.TypeInt:
		n, ok := toInt64(v)
		if !ok {
			return nil, mismatch(d, "expected integer, got %T", v)
		}
		lo, hi := int64(-1)<<(prec-1), int64(1)<<(prec-1)-1
		if prec == 64 {
			lo, hi = math.MinInt64, math.MaxInt64
		}
		if n < lo || n > hi {
			return nil, mismatch(d, "%d overflows int%d", n, prec)
		}
		if err := checkRange(d, float64(n)); err != nil {
			return nil, err
		}
		if err := checkEnum(d, n); err != nil {
			return nil, err
		}
		return appendUint(out, uint64(n), prec), nil

	case schema.TypeUint:
		u, ok := toUint64(v)
		if !ok {
			return nil, mismatch(d, "expected unsigned integer, got %T", v)
		}
		if prec < 64 && u > uint64(1)<<prec-1 {
			return nil, mismatch(d, "%d overflows uint%d", u, prec)
		}
		if err := checkRange(d, float64(u)); err != nil {
			return nil, err
		}
		if err := checkEnum(d, u); err != nil {
			return nil, err
		}
		return appendUint(out, u, prec), nil

	case schema.TypeFloat:
		f, ok := toFloat64(v)
		if !ok {
			return nil, mismatch(d, "expected float, got %T", v)
		}
		if prec == 32 && overflows32(f) {
			return nil, mismatch(d, "%v overflows float32", f)
		}
		if err := checkRange(d, f); err != nil {
			return nil, err
		}
		if err := checkEnum(d, f); err != nil {
			return nil, err
		}
		return appendFloat(out, f, prec), nil

	case schema.TypeComplex:
		c, ok := toComplex128(v)
		if !ok {
			return nil, mismatch(d, "expected complex, got %T", v)
		}
		if prec == 64 && (overflows32(real(c)) || overflows32(imag(c))) {
			return nil, mismatch(d, "%v overflows complex64", c)
		}
		out = appendFloat(out, real(c), prec/2)
		return appendFloat(out, imag(c), prec/2), nil

	case schema.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(d, "expected bool, got %T", v)
		}
		if b {
			return append(out, 1), nil
		}
		return append(out, 0), nil

	case schema.TypeNull:
		if v != nil {
			return nil, mismatch(d, "expected nil, got %T", v)
		}
		return out, nil

	case schema.TypeBytes:
		var b []byte
		switch s := v.(type) {
		case []byte:
			b = s
		case string:
			b = []byte(s)
		default:
			return nil, mismatch(d, "expected bytes, got %T", v)
		}
		if prec > 0 && len(b)*8 > prec {
			return nil, mismatch(d, "%d bytes exceed precision %d", len(b), prec)
		}
		if err := checkLength(d, len(b)); err != nil {
			return nil, err
		}
		return putBlob(out, b)

	case schema.TypeUnicode, schema.TypeFunction:
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case []byte:
			s = string(t)
		default:
			return nil, mismatch(d, "expected string, got %T", v)
		}
		if !utf8.ValidString(s) {
			return nil, mismatch(d, "invalid UTF-8")
		}
		if kind == schema.TypeFunction {
			if s == "" {
				return nil, mismatch(d, "empty function name")
			}
			return putBlob(out, []byte(s))
		}
		runes := utf8.RuneCountInString(s)
		if prec > 0 && runes*32 > prec {
			return nil, mismatch(d, "%d characters exceed precision %d", runes, prec)
		}
		if err := checkLength(d, runes); err != nil {
			return nil, err
		}
		if !d.MatchString(s) {
			return nil, mismatch(d, "%q does not match pattern %q", s, d.Pattern)
		}
		if err := checkEnum(d, s); err != nil {
			return nil, err
		}
		return putBlob(out, []byte(s))
	}
	return nil, mismatch(d, "kind %q is not a scalar", kind)
}

// readScalar decodes one element into its natural Go type for prec.
func readScalar(r *reader, kind string, prec int, d *schema.Descriptor) (any, error) {
	if err := checkPrecision(d, kind, prec); err != nil {
		return nil, err
	}
	switch kind {
	case schema.TypeInt:
		u, err := readUint(r, prec)
		if err != nil {
			return nil, err
		}
		switch prec {
		case 8:
			return int8(u), nil
		case 16:
			return int16(u), nil
		case 32:
			return int32(u), nil
		default:
			return int64(u), nil
		}
	case schema.TypeUint:
		u, err := readUint(r, prec)
		if err != nil {
			return nil, err
		}
		switch prec {
		case 8:
			return uint8(u), nil
		case 16:
			return uint16(u), nil
		case 32:
			return uint32(u), nil
		default:
			return u, nil
		}
	case schema.TypeFloat:
		f, err := readFloat(r, prec)
		if err != nil {
			return nil, err
		}
		if prec == 32 {
			return float32(f), nil
		}
		return f, nil
	case schema.TypeComplex:
		re, err := readFloat(r, prec/2)
		if err != nil {
			return nil, err
		}
		im, err := readFloat(r, prec/2)
		if err != nil {
			return nil, err
		}
		if prec == 64 {
			return complex64(complex(re, im)), nil
		}
		return complex(re, im), nil
	case schema.TypeBoolean:
		b, err := r.take(1)
		if err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, mismatch(d, "invalid bool byte %#x", b[0])
	case schema.TypeNull:
		return nil, nil
	case schema.TypeBytes:
		b, err := r.blob()
		if err != nil {
			return nil, err
		}
		if prec > 0 && len(b)*8 > prec {
			return nil, mismatch(d, "%d bytes exceed precision %d", len(b), prec)
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case schema.TypeUnicode, schema.TypeFunction:
		b, err := r.blob()
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, mismatch(d, "invalid UTF-8")
		}
		return string(b), nil
	}
	return nil, mismatch(d, "kind %q is not a scalar", kind)
}

// elemType is the Go type readScalar produces for kind at prec.
func elemType(kind string, prec int) reflect.Type {
	switch kind {
	case schema.TypeInt:
		switch prec {
		case 8:
			return reflect.TypeOf(int8(0))
		case 16:
			return reflect.TypeOf(int16(0))
		case 32:
			return reflect.TypeOf(int32(0))
		default:
			return reflect.TypeOf(int64(0))
		}
	case schema.TypeUint:
		switch prec {
		case 8:
			return reflect.TypeOf(uint8(0))
		case 16:
			return reflect.TypeOf(uint16(0))
		case 32:
			return reflect.TypeOf(uint32(0))
		default:
			return reflect.TypeOf(uint64(0))
		}
	case schema.TypeFloat:
		if prec == 32 {
			return reflect.TypeOf(float32(0))
		}
		return reflect.TypeOf(float64(0))
	case schema.TypeComplex:
		if prec == 64 {
			return reflect.TypeOf(complex64(0))
		}
		return reflect.TypeOf(complex128(0))
	case schema.TypeBoolean:
		return reflect.TypeOf(false)
	case schema.TypeBytes:
		return reflect.TypeOf([]byte(nil))
	case schema.TypeUnicode, schema.TypeFunction:
		return reflect.TypeOf("")
	default:
		return reflect.TypeOf((*any)(nil)).Elem()
	}
}

func overflows32(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32
}

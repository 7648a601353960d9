package codec

import (
	"fmt"
	"math"
	"regexp"
	"sync"

	"github.com/danmuck/typechan/internal/protocol/schema"
	"github.com/vmihailenco/msgpack/v4"
)

// Untyped values and schema documents travel as length-prefixed msgpack.
// Decoded values are normalized to int64, uint64 (above MaxInt64 only),
// float64, string, []byte, bool, nil, []any and map[string]any.

func appendAny(out []byte, v any, d *schema.Descriptor) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, mismatch(d, "marshal: %v", err)
	}
	return putBlob(out, b)
}

func readAny(r *reader, d *schema.Descriptor) (any, error) {
	b, err := r.blob()
	if err != nil {
		return nil, err
	}
	var v any
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, mismatch(d, "unmarshal: %v", err)
	}
	n, err := normalize(v)
	if err != nil {
		return nil, mismatch(d, "%v", err)
	}
	return n, nil
}

func appendSchema(out []byte, v any, d *schema.Descriptor) ([]byte, error) {
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch(d, "expected schema document, got %T", v)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, mismatch(d, "invalid schema document: %v", err)
	}
	return appendAny(out, doc, d)
}

func readSchema(r *reader, d *schema.Descriptor) (any, error) {
	v, err := readAny(r, d)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch(d, "expected schema document, got %T", v)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, mismatch(d, "invalid schema document: %v", err)
	}
	return doc, nil
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, []byte, int64, float64:
		return t, nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		return normalize(uint64(t))
	case uint64:
		if t > math.MaxInt64 {
			return t, nil
		}
		return int64(t), nil
	case float32:
		return float64(t), nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("codec: non-string map key %T", k)
			}
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[ks] = n
		}
		return out, nil
	default:
		return t, nil
	}
}

var patterns sync.Map

func matchPattern(pattern, s string) bool {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(s)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	patterns.Store(pattern, re)
	return re.MatchString(s)
}

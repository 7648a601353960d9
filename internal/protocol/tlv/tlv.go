// Package tlv packs the encoded fields of one logical message. Each record
// is field id (u16), kind code (u8), value length (u32), value.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/typechan/internal/protocol/schema"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrValueTooLarge    = errors.New("tlv: field value exceeds u32 length")
)

// Kind codes carried in the type byte.
const (
	TypeAny      uint8 = 0
	TypeInt      uint8 = 1
	TypeUint     uint8 = 2
	TypeFloat    uint8 = 3
	TypeComplex  uint8 = 4
	TypeBool     uint8 = 5
	TypeString   uint8 = 6
	TypeBytes    uint8 = 7
	TypeNull     uint8 = 8
	Type1DArray  uint8 = 9
	TypeNDArray  uint8 = 10
	TypeArray    uint8 = 11
	TypeObject   uint8 = 12
	TypeObj      uint8 = 13
	TypePly      uint8 = 14
	TypeSchema   uint8 = 15
	TypeFunction uint8 = 16
)

var kindCodes = map[string]uint8{
	schema.TypeInt:      TypeInt,
	schema.TypeUint:     TypeUint,
	schema.TypeFloat:    TypeFloat,
	schema.TypeComplex:  TypeComplex,
	schema.TypeBoolean:  TypeBool,
	schema.TypeUnicode:  TypeString,
	schema.TypeBytes:    TypeBytes,
	schema.TypeNull:     TypeNull,
	schema.Type1DArray:  Type1DArray,
	schema.TypeNDArray:  TypeNDArray,
	schema.TypeArray:    TypeArray,
	schema.TypeObject:   TypeObject,
	schema.TypeObj:      TypeObj,
	schema.TypePly:      TypePly,
	schema.TypeSchema:   TypeSchema,
	schema.TypeFunction: TypeFunction,
}

// CodeFor returns the kind code for a descriptor's wire kind.
func CodeFor(d *schema.Descriptor) uint8 {
	if code, ok := kindCodes[d.WireKind()]; ok {
		return code
	}
	return TypeAny
}

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

// AppendField appends the record for f to out.
func AppendField(out []byte, f Field) []byte {
	out = binary.BigEndian.AppendUint16(out, f.ID)
	out = append(out, f.Type)
	out = binary.BigEndian.AppendUint32(out, uint32(len(f.Value)))
	return append(out, f.Value...)
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint32(len(payload)-i) < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

// EncodeFields packs fields in order into one payload.
func EncodeFields(fields []Field) ([]byte, error) {
	size := 0
	for _, f := range fields {
		if uint64(len(f.Value)) > math.MaxUint32 {
			return nil, ErrValueTooLarge
		}
		size += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out, nil
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("tlv: field %d type mismatch: got %d want %d", f.ID, f.Type, expected)
	}
	return nil
}

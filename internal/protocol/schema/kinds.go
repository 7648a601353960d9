package schema

import "github.com/samber/lo"

// Type names recognized in the "type" keyword.
const (
	TypeArray    = "array"
	TypeBoolean  = "boolean"
	TypeInteger  = "integer"
	TypeNull     = "null"
	TypeNumber   = "number"
	TypeObject   = "object"
	TypeString   = "string"
	Type1DArray  = "1darray"
	TypeBytes    = "bytes"
	TypeComplex  = "complex"
	TypeFloat    = "float"
	TypeFunction = "function"
	TypeInt      = "int"
	TypeNDArray  = "ndarray"
	TypeObj      = "obj"
	TypePly      = "ply"
	TypeScalar   = "scalar"
	TypeSchema   = "schema"
	TypeUint     = "uint"
	TypeUnicode  = "unicode"
)

// MaxDepth bounds nesting while validating and resolving documents.
const MaxDepth = 64

var validTypes = []string{
	TypeArray, TypeBoolean, TypeInteger, TypeNull, TypeNumber, TypeObject, TypeString,
	Type1DArray, TypeBytes, TypeComplex, TypeFloat, TypeFunction, TypeInt, TypeNDArray,
	TypeObj, TypePly, TypeScalar, TypeSchema, TypeUint, TypeUnicode,
}

var validSubtypes = []string{TypeBytes, TypeComplex, TypeFloat, TypeInt, TypeUint, TypeUnicode}

var (
	arrayFamily   = []string{TypeArray, Type1DArray, TypeNDArray}
	stringFamily  = []string{TypeString, TypeBytes, TypeUnicode}
	objectFamily  = []string{TypeObject, TypeObj, TypePly}
	numericFamily = []string{TypeInteger, TypeNumber, TypeInt, TypeUint, TypeFloat, TypeComplex, TypeScalar}
)

// ValidType reports whether name may appear in a "type" keyword.
func ValidType(name string) bool {
	return lo.Contains(validTypes, name)
}

// ValidSubtype reports whether name may appear in a "subtype" keyword.
func ValidSubtype(name string) bool {
	return lo.Contains(validSubtypes, name)
}

// ValidTypes returns the recognized type names.
func ValidTypes() []string {
	out := make([]string, len(validTypes))
	copy(out, validTypes)
	return out
}

// subschemaSingle are keywords holding one subschema.
var subschemaSingle = []string{"additionalItems", "additionalProperties", "not"}

// subschemaMaps are keywords holding name -> subschema maps.
var subschemaMaps = []string{"properties", "patternProperties", "definitions"}

// subschemaLists are keywords holding non-empty subschema lists.
var subschemaLists = []string{"allOf", "anyOf", "oneOf"}

package schema

import (
	"testing"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsExclusiveMinimumWithoutMinimum(t *testing.T) {
	testlog.Start(t)
	err := Validate(map[string]any{"type": "int", "exclusiveMinimum": true})
	var schemaErr *protocol.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Contains(t, schemaErr.Reason, "requires minimum")

	require.NoError(t, Validate(map[string]any{"type": "int", "minimum": 0, "exclusiveMinimum": true}))
}

func TestValidateRejections(t *testing.T) {
	testlog.Start(t)
	cases := map[string]map[string]any{
		"unknown type":     {"type": "quaternion"},
		"type list":        {"type": []any{"int", "bogus"}},
		"shape zero":       {"type": "ndarray", "shape": []any{2, 0}},
		"shape empty":      {"type": "ndarray", "shape": []any{}},
		"precision zero":   {"type": "float", "precision": 0},
		"length zero":      {"type": "1darray", "length": 0},
		"bad subtype":      {"type": "scalar", "subtype": "string"},
		"bad pattern":      {"type": "string", "pattern": "(["},
		"bad pattern prop": {"type": "object", "patternProperties": map[string]any{"([": map[string]any{}}},
		"negative min":     {"type": "array", "minItems": -1},
		"dup required":     {"type": "object", "required": []any{"a", "a"}},
		"empty enum":       {"type": "int", "enum": []any{}},
		"zero multipleOf":  {"type": "int", "multipleOf": 0},
		"empty anyOf":      {"anyOf": []any{}},
		"ref not string":   {"$ref": 3},
		"units not string": {"type": "float", "units": 5},
		"nested":           {"type": "array", "items": map[string]any{"type": "float", "precision": -3}},
		"nested property":  {"type": "object", "properties": map[string]any{"x": map[string]any{"type": "nope"}}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			err := Validate(doc)
			require.Error(t, err)
			require.Equal(t, protocol.KindSchema, protocol.KindOf(err))
		})
	}
}

func TestValidateAcceptsDomainTypes(t *testing.T) {
	testlog.Start(t)
	for _, name := range ValidTypes() {
		require.NoError(t, Validate(map[string]any{"type": name}), name)
	}
	require.NoError(t, Validate(map[string]any{
		"type":      "ndarray",
		"subtype":   "float",
		"precision": 32,
		"shape":     []any{2, 3},
		"units":     "m/s",
	}))
}

func TestNormalizeOneDArrayDefaults(t *testing.T) {
	testlog.Start(t)
	in := map[string]any{"type": "1darray", "shape": []any{3}}
	out := Normalize(in)

	want := map[string]any{
		"type":            "1darray",
		"shape":           []any{3},
		"additionalItems": map[string]any{},
		"minItems":        0,
		"uniqueItems":     false,
		"length":          3,
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("normalized document mismatch (-want +got):\n%s", diff)
	}
	require.NotContains(t, in, "additionalItems", "input must not be modified")
}

func TestNormalizeFamiliesAndNesting(t *testing.T) {
	testlog.Start(t)
	out := Normalize(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":  map[string]any{"type": "unicode"},
			"count": map[string]any{"type": "uint", "minimum": 1},
		},
		"definitions": map[string]any{
			"vec": map[string]any{"type": "array"},
		},
	})
	require.Equal(t, map[string]any{}, out["additionalProperties"])
	require.Equal(t, 0, out["minProperties"])

	props := out["properties"].(map[string]any)
	require.Equal(t, 0, props["name"].(map[string]any)["minLength"])
	count := props["count"].(map[string]any)
	require.Equal(t, false, count["exclusiveMinimum"])
	require.Equal(t, false, count["exclusiveMaximum"])

	vec := out["definitions"].(map[string]any)["vec"].(map[string]any)
	require.Equal(t, 0, vec["minItems"])
}

func TestLoadDescriptor(t *testing.T) {
	testlog.Start(t)
	d, err := Load(map[string]any{
		"type":      "ndarray",
		"subtype":   "float",
		"precision": float64(32),
		"shape":     []any{float64(2), float64(3)},
		"units":     "K",
		"maxItems":  float64(6),
	})
	require.NoError(t, err)
	require.Equal(t, TypeNDArray, d.Kind)
	require.Equal(t, TypeFloat, d.ElementKind())
	require.Equal(t, 32, d.EffectivePrecision())
	require.Equal(t, []int{2, 3}, d.Shape)
	require.Equal(t, 6, d.Count())
	require.Equal(t, "K", d.Units)
	require.NotNil(t, d.MaxItems)
	require.Equal(t, 6, *d.MaxItems)
	require.True(t, d.AllowAdditionalItems)
	require.Equal(t, "ndarray<float32>[2x3] (K)", d.String())
}

func TestResolveReferenceCycle(t *testing.T) {
	testlog.Start(t)
	doc := map[string]any{
		"$ref": "#/definitions/a",
		"definitions": map[string]any{
			"a": map[string]any{"$ref": "#/definitions/b"},
			"b": map[string]any{"$ref": "#/definitions/a"},
		},
	}
	_, err := Load(doc)
	var rec *protocol.RecursiveSchemaError
	require.ErrorAs(t, err, &rec)
	require.Equal(t, "#/definitions/a", rec.Ref)

	_, err = Load(map[string]any{"$ref": "#"})
	require.ErrorAs(t, err, &rec)
}

func TestResolveStructuralRecursion(t *testing.T) {
	testlog.Start(t)
	d, err := Load(map[string]any{
		"type":  "array",
		"items": map[string]any{"$ref": "#"},
	})
	require.NoError(t, err)
	require.Same(t, d, d.Items)

	tree, err := Load(map[string]any{
		"$ref": "#/definitions/node",
		"definitions": map[string]any{
			"node": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"value":    map[string]any{"type": "int"},
					"children": map[string]any{"type": "array", "items": map[string]any{"$ref": "#/definitions/node"}},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Same(t, tree, tree.Properties["children"].Items)
}

func TestResolveDepthBound(t *testing.T) {
	testlog.Start(t)
	doc := map[string]any{"type": "int"}
	for i := 0; i < MaxDepth+2; i++ {
		doc = map[string]any{"type": "array", "items": doc}
	}
	_, err := Resolve(doc)
	require.Equal(t, protocol.KindRecursiveSchema, protocol.KindOf(err))
}

func TestResolveUnknownReference(t *testing.T) {
	testlog.Start(t)
	_, err := Load(map[string]any{"$ref": "#/definitions/missing"})
	require.Equal(t, protocol.KindSchema, protocol.KindOf(err))

	_, err = Load(map[string]any{"$ref": "http://example.com/schema.json"})
	require.Equal(t, protocol.KindSchema, protocol.KindOf(err))
}

func TestParseJSONAndYAML(t *testing.T) {
	testlog.Start(t)
	fromJSON, err := Parse([]byte(`{"type": "1darray", "subtype": "int", "precision": 16, "length": 4}`))
	require.NoError(t, err)
	fromYAML, err := Parse([]byte("type: 1darray\nsubtype: int\nprecision: 16\nlength: 4\n"))
	require.NoError(t, err)

	a, err := Load(fromJSON)
	require.NoError(t, err)
	b, err := Load(fromYAML)
	require.NoError(t, err)
	require.True(t, Equivalent(a, b))
	require.Equal(t, 4, b.Length)
	require.Equal(t, 16, b.EffectivePrecision())

	_, err = Parse([]byte("   "))
	require.Error(t, err)
	_, err = Parse([]byte("{not json"))
	require.Equal(t, protocol.KindSchema, protocol.KindOf(err))
}

func TestFieldsSplitsTuple(t *testing.T) {
	testlog.Start(t)
	d, err := Load(map[string]any{
		"type":  "array",
		"items": []any{map[string]any{"type": "int"}, map[string]any{"type": "unicode"}},
	})
	require.NoError(t, err)
	fields := Fields(d)
	require.Len(t, fields, 2)
	require.Equal(t, TypeInt, fields[0].WireKind())
	require.Equal(t, TypeUnicode, fields[1].WireKind())

	single, err := Load(map[string]any{"type": "float"})
	require.NoError(t, err)
	require.Len(t, Fields(single), 1)
}

func TestMerge(t *testing.T) {
	testlog.Start(t)
	format := []*Descriptor{Scalar(TypeInt, 32), Scalar(TypeFloat, 64)}

	withUnits, err := Load(map[string]any{"type": "float", "units": "m"})
	require.NoError(t, err)
	counter, err := Load(map[string]any{"type": "integer"})
	require.NoError(t, err)

	merged, err := Merge(format, []*Descriptor{counter, withUnits})
	require.NoError(t, err)
	require.Equal(t, 32, merged[0].EffectivePrecision())
	require.Equal(t, "m", merged[1].Units)

	_, err = Merge(format, []*Descriptor{counter})
	var schemaErr *protocol.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Contains(t, schemaErr.Reason, "schema conflict")

	_, err = Merge(format, []*Descriptor{Scalar(TypeInt, 16), withUnits})
	require.ErrorAs(t, err, &schemaErr)
	require.Contains(t, schemaErr.Reason, "precision")

	_, err = Merge(format, []*Descriptor{Scalar(TypeUnicode, 0), withUnits})
	require.ErrorAs(t, err, &schemaErr)
}

func TestMergeRejectsDifferentUnits(t *testing.T) {
	testlog.Start(t)
	metres, err := Load(map[string]any{"type": "float", "units": "m"})
	require.NoError(t, err)
	seconds, err := Load(map[string]any{"type": "float", "units": "s"})
	require.NoError(t, err)
	bare, err := Load(map[string]any{"type": "float"})
	require.NoError(t, err)

	_, err = Merge([]*Descriptor{metres}, []*Descriptor{seconds})
	var schemaErr *protocol.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Contains(t, schemaErr.Reason, "units")

	merged, err := Merge([]*Descriptor{metres}, []*Descriptor{bare})
	require.NoError(t, err)
	require.Equal(t, "m", merged[0].Units)

	require.False(t, Equivalent(metres, seconds))
	require.True(t, Equivalent(metres, bare))
}

func TestCanonicalAndEquivalent(t *testing.T) {
	testlog.Start(t)
	require.Equal(t, TypeInt, Canonical(TypeInteger))
	require.Equal(t, TypeFloat, Canonical(TypeNumber))
	require.Equal(t, TypeUnicode, Canonical(TypeString))

	scalar := &Descriptor{Kind: TypeScalar, Subtype: TypeFloat}
	require.True(t, Equivalent(scalar, Scalar(TypeNumber, 0)))
	require.False(t, Equivalent(Scalar(TypeInt, 32), Scalar(TypeInt, 64)))
	require.Equal(t, "int8", Scalar(TypeInt, 8).String())
	require.Equal(t, "1darray<uint16>[5]", Array(TypeUint, 16, 5).String())
}

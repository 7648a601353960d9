package schema

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

// Descriptor is the resolved form of one type document. Subschema
// pointers may form cycles when the document is structurally recursive.
type Descriptor struct {
	Kind      string
	Types     []string
	Subtype   string
	Precision int
	Shape     []int
	Length    int
	Units     string
	Title     string

	Items                *Descriptor
	TupleItems           []*Descriptor
	AdditionalItems      *Descriptor
	AllowAdditionalItems bool

	Properties                map[string]*Descriptor
	PatternProperties         map[string]*Descriptor
	Required                  []string
	AdditionalProperties      *Descriptor
	AllowAdditionalProperties bool

	AllOf []*Descriptor
	AnyOf []*Descriptor
	OneOf []*Descriptor
	Not   *Descriptor

	MinItems         int
	MaxItems         *int
	MinLength        int
	MaxLength        *int
	MinProperties    int
	MaxProperties    *int
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum bool
	ExclusiveMaximum bool
	UniqueItems      bool
	Pattern          string
	Enum             []any

	// Doc is the normalized document the descriptor was built from.
	Doc map[string]any

	pattern *regexp.Regexp
}

// options is the flat keyword subset decoded straight from a document.
type options struct {
	Subtype          string   `mapstructure:"subtype"`
	Precision        int      `mapstructure:"precision"`
	Shape            []int    `mapstructure:"shape"`
	Length           int      `mapstructure:"length"`
	Units            string   `mapstructure:"units"`
	Title            string   `mapstructure:"title"`
	Required         []string `mapstructure:"required"`
	MinItems         int      `mapstructure:"minItems"`
	MaxItems         *int     `mapstructure:"maxItems"`
	MinLength        int      `mapstructure:"minLength"`
	MaxLength        *int     `mapstructure:"maxLength"`
	MinProperties    int      `mapstructure:"minProperties"`
	MaxProperties    *int     `mapstructure:"maxProperties"`
	Minimum          *float64 `mapstructure:"minimum"`
	Maximum          *float64 `mapstructure:"maximum"`
	ExclusiveMinimum bool     `mapstructure:"exclusiveMinimum"`
	ExclusiveMaximum bool     `mapstructure:"exclusiveMaximum"`
	UniqueItems      bool     `mapstructure:"uniqueItems"`
	Pattern          string   `mapstructure:"pattern"`
	Enum             []any    `mapstructure:"enum"`
}

func decodeOptions(doc map[string]any, d *Descriptor) error {
	var opts options
	if err := mapstructure.Decode(doc, &opts); err != nil {
		return err
	}
	d.Subtype = opts.Subtype
	d.Precision = opts.Precision
	d.Shape = opts.Shape
	d.Length = opts.Length
	d.Units = opts.Units
	d.Title = opts.Title
	d.Required = opts.Required
	d.MinItems = opts.MinItems
	d.MaxItems = opts.MaxItems
	d.MinLength = opts.MinLength
	d.MaxLength = opts.MaxLength
	d.MinProperties = opts.MinProperties
	d.MaxProperties = opts.MaxProperties
	d.Minimum = opts.Minimum
	d.Maximum = opts.Maximum
	d.ExclusiveMinimum = opts.ExclusiveMinimum
	d.ExclusiveMaximum = opts.ExclusiveMaximum
	d.UniqueItems = opts.UniqueItems
	d.Pattern = opts.Pattern
	d.Enum = opts.Enum
	if d.Pattern != "" {
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			return err
		}
		d.pattern = re
	}
	return nil
}

// Scalar builds a descriptor for a single value of kind with the given
// bit precision (0 keeps the kind default).
func Scalar(kind string, precision int) *Descriptor {
	doc := map[string]any{"type": kind}
	if precision > 0 {
		doc["precision"] = precision
	}
	return &Descriptor{
		Kind:                      kind,
		Precision:                 precision,
		AllowAdditionalItems:      true,
		AllowAdditionalProperties: true,
		Doc:                       doc,
	}
}

// Array builds a 1darray descriptor of subtype elements. length 0 leaves
// the element count open.
func Array(subtype string, precision, length int) *Descriptor {
	d := Scalar(Type1DArray, precision)
	d.Subtype = subtype
	d.Doc["subtype"] = subtype
	if length > 0 {
		d.Length = length
		d.Doc["length"] = length
	}
	return d
}

// Canonical folds the JSON-schema aliases onto the wire kinds.
func Canonical(kind string) string {
	switch kind {
	case TypeInteger:
		return TypeInt
	case TypeNumber:
		return TypeFloat
	case TypeString:
		return TypeUnicode
	default:
		return kind
	}
}

// WireKind is the kind that selects the encoding; scalar defers to its
// subtype.
func (d *Descriptor) WireKind() string {
	if d.Kind == TypeScalar {
		return Canonical(d.Subtype)
	}
	return Canonical(d.Kind)
}

// ElementKind is the kind of each element for arrays and the wire kind
// otherwise.
func (d *Descriptor) ElementKind() string {
	switch d.Kind {
	case TypeScalar, Type1DArray, TypeNDArray:
		return Canonical(d.Subtype)
	default:
		return Canonical(d.Kind)
	}
}

// EffectivePrecision returns the precision used on the wire, filling the
// per-kind default when none was given. Zero means unbounded.
func (d *Descriptor) EffectivePrecision() int {
	if d.Precision > 0 {
		return d.Precision
	}
	return DefaultPrecision(d.ElementKind())
}

// DefaultPrecision is the bit width used when a document sets none.
func DefaultPrecision(kind string) int {
	switch Canonical(kind) {
	case TypeInt, TypeUint, TypeFloat:
		return 64
	case TypeComplex:
		return 128
	default:
		return 0
	}
}

// Count is the element count implied by Shape, or -1 when unset.
func (d *Descriptor) Count() int {
	if len(d.Shape) == 0 {
		if d.Length > 0 {
			return d.Length
		}
		return -1
	}
	return lo.Reduce(d.Shape, func(acc, n, _ int) int { return acc * n }, 1)
}

// MatchString applies the pattern keyword; documents without one match.
func (d *Descriptor) MatchString(s string) bool {
	if d.pattern == nil {
		return true
	}
	return d.pattern.MatchString(s)
}

func (d *Descriptor) String() string {
	if d == nil {
		return "<nil>"
	}
	if d.Kind == "" {
		if len(d.Types) > 0 {
			return strings.Join(d.Types, "|")
		}
		return "any"
	}
	var b strings.Builder
	switch d.Kind {
	case Type1DArray, TypeNDArray:
		fmt.Fprintf(&b, "%s<%s>", d.Kind, elementName(d.Subtype, d.EffectivePrecision()))
		if len(d.Shape) > 0 {
			dims := lo.Map(d.Shape, func(n, _ int) string { return fmt.Sprint(n) })
			fmt.Fprintf(&b, "[%s]", strings.Join(dims, "x"))
		} else if d.Length > 0 {
			fmt.Fprintf(&b, "[%d]", d.Length)
		}
	case TypeScalar:
		b.WriteString(elementName(d.Subtype, d.EffectivePrecision()))
	default:
		b.WriteString(elementName(d.Kind, d.EffectivePrecision()))
	}
	if d.Units != "" {
		fmt.Fprintf(&b, " (%s)", d.Units)
	}
	return b.String()
}

func elementName(kind string, precision int) string {
	switch Canonical(kind) {
	case TypeInt, TypeUint, TypeFloat, TypeComplex:
		return fmt.Sprintf("%s%d", Canonical(kind), precision)
	default:
		return Canonical(kind)
	}
}

// Equivalent reports whether a and b put the same bytes on the wire and
// do not declare different units.
func Equivalent(a, b *Descriptor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return !unitsConflict(a, b) &&
		a.WireKind() == b.WireKind() &&
		a.ElementKind() == b.ElementKind() &&
		a.EffectivePrecision() == b.EffectivePrecision() &&
		slices.Equal(a.Shape, b.Shape) &&
		a.Length == b.Length
}

package schema

import (
	"fmt"
	"slices"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Fields splits a message descriptor into its ordered field list. An
// array with tuple items describes one field per item; anything else is
// a single-field message.
func Fields(d *Descriptor) []*Descriptor {
	if d.Kind == TypeArray && len(d.TupleItems) > 0 {
		return d.TupleItems
	}
	return []*Descriptor{d}
}

// Merge reconciles the field list compiled from a format string with the
// one derived from a schema. Both must agree on arity and on the wire
// kind, element kind and shape of each field. A precision set on only
// one side is taken from that side; set on both, the values must match.
// Units set on both sides must match; other metadata comes from the
// schema. Any divergence is a schema conflict.
func Merge(fromFormat, fromSchema []*Descriptor) ([]*Descriptor, error) {
	if len(fromFormat) != len(fromSchema) {
		return nil, &protocol.SchemaError{
			Path:   "#",
			Reason: fmt.Sprintf("schema conflict: format has %d fields, schema has %d", len(fromFormat), len(fromSchema)),
		}
	}
	out := make([]*Descriptor, len(fromSchema))
	for i := range fromSchema {
		f, s := fromFormat[i], fromSchema[i]
		if err := compatible(f, s); err != nil {
			log.Debug().Int("field", i).Str("format", f.String()).Str("schema", s.String()).Msg("schema.Merge conflict")
			return nil, &protocol.SchemaError{Path: fmt.Sprintf("#/%d", i), Reason: "schema conflict: " + err.Error()}
		}
		merged := *s
		if merged.Precision == 0 {
			merged.Precision = f.Precision
		}
		if merged.Units == "" {
			merged.Units = f.Units
		}
		out[i] = &merged
	}
	return out, nil
}

func compatible(f, s *Descriptor) error {
	if f.WireKind() != s.WireKind() {
		return fmt.Errorf("kind %s vs %s", f.WireKind(), s.WireKind())
	}
	if f.ElementKind() != s.ElementKind() {
		return fmt.Errorf("element kind %s vs %s", f.ElementKind(), s.ElementKind())
	}
	if f.Precision > 0 && s.Precision > 0 && f.Precision != s.Precision {
		return fmt.Errorf("precision %d vs %d", f.Precision, s.Precision)
	}
	if len(f.Shape) > 0 && len(s.Shape) > 0 && !slices.Equal(f.Shape, s.Shape) {
		return fmt.Errorf("shape %v vs %v", f.Shape, s.Shape)
	}
	if unitsConflict(f, s) {
		return fmt.Errorf("units %q vs %q", f.Units, s.Units)
	}
	return nil
}

// unitsConflict reports two different units. Units are compared as
// written; no conversion is attempted.
func unitsConflict(a, b *Descriptor) bool {
	return a.Units != "" && b.Units != "" && a.Units != b.Units
}

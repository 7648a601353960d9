package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type resolver struct {
	root map[string]any
	memo map[string]*Descriptor
}

// Resolve builds the descriptor graph for doc, following internal "$ref"
// pointers. A reference chain that never reaches a non-reference document
// fails with *protocol.RecursiveSchemaError; recursion through
// composition keywords yields a shared descriptor.
func Resolve(doc map[string]any) (*Descriptor, error) {
	r := &resolver{root: doc, memo: make(map[string]*Descriptor)}
	d, err := r.build(doc, "#", 0, nil)
	if err != nil {
		log.Debug().Err(err).Msg("schema.Resolve failed")
		return nil, err
	}
	return d, nil
}

// Load validates, normalizes and resolves doc.
func Load(doc map[string]any) (*Descriptor, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return Resolve(Normalize(doc))
}

func (r *resolver) build(doc map[string]any, self string, depth int, chain []string) (*Descriptor, error) {
	if depth > MaxDepth {
		return nil, &protocol.RecursiveSchemaError{Ref: self, Chain: chain}
	}

	if raw, isRef := doc["$ref"]; isRef {
		ref, _ := raw.(string)
		if self != "" {
			chain = append(chain, self)
		}
		if d, ok := r.memo[ref]; ok {
			return d, nil
		}
		if lo.Contains(chain, ref) {
			return nil, &protocol.RecursiveSchemaError{Ref: ref, Chain: chain}
		}
		target, err := r.lookup(ref)
		if err != nil {
			return nil, err
		}
		return r.build(target, ref, depth+1, chain)
	}

	d := &Descriptor{Doc: doc}
	if self != "" {
		r.memo[self] = d
	}
	if err := r.fill(d, doc, self, depth); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *resolver) sub(raw any, path string, depth int) (*Descriptor, error) {
	doc, ok := asMap(raw)
	if !ok {
		return nil, &protocol.SchemaError{Path: path, Reason: "expected a schema"}
	}
	return r.build(doc, "", depth+1, nil)
}

func (r *resolver) fill(d *Descriptor, doc map[string]any, self string, depth int) error {
	path := self
	if path == "" {
		path = "#"
	}

	names, ok := typeNames(doc)
	if !ok {
		return &protocol.SchemaError{Path: path, Reason: "type must be a string or list of strings"}
	}
	switch len(names) {
	case 0:
	case 1:
		d.Kind = names[0]
	default:
		d.Types = names
	}
	if err := decodeOptions(doc, d); err != nil {
		return &protocol.SchemaError{Path: path, Reason: err.Error()}
	}
	if d.Kind == Type1DArray && d.Length == 0 && len(d.Shape) == 1 {
		d.Length = d.Shape[0]
	}

	var err error
	if raw, ok := doc["items"]; ok {
		if list, isList := asList(raw); isList {
			d.TupleItems = make([]*Descriptor, len(list))
			for i, item := range list {
				if d.TupleItems[i], err = r.sub(item, fmt.Sprintf("%s/items/%d", path, i), depth); err != nil {
					return err
				}
			}
		} else if d.Items, err = r.sub(raw, path+"/items", depth); err != nil {
			return err
		}
	}
	if d.AdditionalItems, d.AllowAdditionalItems, err = r.policy(doc["additionalItems"], path+"/additionalItems", depth); err != nil {
		return err
	}
	if d.AdditionalProperties, d.AllowAdditionalProperties, err = r.policy(doc["additionalProperties"], path+"/additionalProperties", depth); err != nil {
		return err
	}
	if d.Properties, err = r.members(doc["properties"], path+"/properties", depth); err != nil {
		return err
	}
	if d.PatternProperties, err = r.members(doc["patternProperties"], path+"/patternProperties", depth); err != nil {
		return err
	}
	for _, slot := range []struct {
		key string
		dst *[]*Descriptor
	}{{"allOf", &d.AllOf}, {"anyOf", &d.AnyOf}, {"oneOf", &d.OneOf}} {
		list, ok := asList(doc[slot.key])
		if !ok {
			continue
		}
		out := make([]*Descriptor, len(list))
		for i, item := range list {
			if out[i], err = r.sub(item, fmt.Sprintf("%s/%s/%d", path, slot.key, i), depth); err != nil {
				return err
			}
		}
		*slot.dst = out
	}
	if raw, ok := doc["not"]; ok {
		if d.Not, err = r.sub(raw, path+"/not", depth); err != nil {
			return err
		}
	}
	return nil
}

// policy reads an additionalItems/additionalProperties keyword. Absent or
// true allows anything; false forbids extras; a schema constrains them.
func (r *resolver) policy(raw any, path string, depth int) (*Descriptor, bool, error) {
	switch v := raw.(type) {
	case nil:
		return nil, true, nil
	case bool:
		return nil, v, nil
	}
	d, err := r.sub(raw, path, depth)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (r *resolver) members(raw any, path string, depth int) (map[string]*Descriptor, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, &protocol.SchemaError{Path: path, Reason: "expected an object"}
	}
	out := make(map[string]*Descriptor, len(m))
	for _, name := range sortedKeys(m) {
		d, err := r.sub(m[name], path+"/"+escapePointer(name), depth)
		if err != nil {
			return nil, err
		}
		out[name] = d
	}
	return out, nil
}

// lookup follows a JSON pointer into the root document. Only
// document-local references are supported.
func (r *resolver) lookup(ref string) (map[string]any, error) {
	if !strings.HasPrefix(ref, "#") {
		return nil, &protocol.SchemaError{Path: ref, Reason: "remote references are not supported"}
	}
	var node any = r.root
	pointer := strings.TrimPrefix(ref, "#")
	if pointer != "" {
		if !strings.HasPrefix(pointer, "/") {
			return nil, &protocol.SchemaError{Path: ref, Reason: "malformed reference"}
		}
		for _, token := range strings.Split(pointer[1:], "/") {
			token = unescapePointer(token)
			if m, ok := asMap(node); ok {
				next, found := m[token]
				if !found {
					return nil, &protocol.SchemaError{Path: ref, Reason: "unresolvable reference"}
				}
				node = next
				continue
			}
			if l, ok := asList(node); ok {
				i, err := strconv.Atoi(token)
				if err != nil || i < 0 || i >= len(l) {
					return nil, &protocol.SchemaError{Path: ref, Reason: "unresolvable reference"}
				}
				node = l[i]
				continue
			}
			return nil, &protocol.SchemaError{Path: ref, Reason: "unresolvable reference"}
		}
	}
	target, ok := asMap(node)
	if !ok {
		return nil, &protocol.SchemaError{Path: ref, Reason: "reference does not name a schema"}
	}
	return target, nil
}

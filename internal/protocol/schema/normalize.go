package schema

import (
	"github.com/samber/lo"
)

// Normalize returns a deep copy of doc with every unset recognized option
// filled with its default. The input is not modified.
func Normalize(doc map[string]any) map[string]any {
	out, _ := asMap(deepCopy(doc))
	normalizeAt(out, 0)
	return out
}

func normalizeAt(doc map[string]any, depth int) {
	if depth > MaxDepth {
		return
	}
	if _, isRef := doc["$ref"]; !isRef {
		names, _ := typeNames(doc)
		if len(names) == 1 {
			applyDefaults(doc, names[0])
		}
	}

	if raw, ok := doc["items"]; ok {
		if sub, isMap := asMap(raw); isMap {
			normalizeAt(sub, depth+1)
			doc["items"] = sub
		} else if list, isList := asList(raw); isList {
			for i, item := range list {
				if sub, isMap := asMap(item); isMap {
					normalizeAt(sub, depth+1)
					list[i] = sub
				}
			}
			doc["items"] = list
		}
	}
	for _, key := range subschemaSingle {
		if sub, isMap := asMap(doc[key]); isMap {
			normalizeAt(sub, depth+1)
			doc[key] = sub
		}
	}
	for _, key := range subschemaMaps {
		members, isMap := asMap(doc[key])
		if !isMap {
			continue
		}
		for name, raw := range members {
			if sub, isMap := asMap(raw); isMap {
				normalizeAt(sub, depth+1)
				members[name] = sub
			}
		}
		doc[key] = members
	}
	for _, key := range subschemaLists {
		list, isList := asList(doc[key])
		if !isList {
			continue
		}
		for i, item := range list {
			if sub, isMap := asMap(item); isMap {
				normalizeAt(sub, depth+1)
				list[i] = sub
			}
		}
		doc[key] = list
	}
}

func setDefault(doc map[string]any, key string, value any) {
	if _, ok := doc[key]; !ok {
		doc[key] = value
	}
}

func applyDefaults(doc map[string]any, name string) {
	switch {
	case lo.Contains(arrayFamily, name):
		setDefault(doc, "additionalItems", map[string]any{})
		setDefault(doc, "minItems", 0)
		setDefault(doc, "uniqueItems", false)
		if name == Type1DArray {
			if dims, ok := asList(doc["shape"]); ok && len(dims) == 1 {
				setDefault(doc, "length", dims[0])
			}
		}
	case lo.Contains(stringFamily, name):
		setDefault(doc, "minLength", 0)
	case lo.Contains(objectFamily, name):
		setDefault(doc, "additionalProperties", map[string]any{})
		setDefault(doc, "minProperties", 0)
	case lo.Contains(numericFamily, name):
		setDefault(doc, "exclusiveMinimum", false)
		setDefault(doc, "exclusiveMaximum", false)
	}
}

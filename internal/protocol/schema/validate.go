package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Validate checks a type document against the meta-schema rules.
// Subschemas are checked recursively; the first violation found in
// sorted-key order is returned.
func Validate(doc map[string]any) error {
	log.Debug().Int("keys", len(doc)).Msg("schema.Validate")
	if err := validateAt(doc, "#", 0); err != nil {
		log.Debug().Err(err).Msg("schema.Validate failed")
		return err
	}
	return nil
}

func invalid(path, format string, args ...any) error {
	return &protocol.SchemaError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func validateAt(doc map[string]any, path string, depth int) error {
	if depth > MaxDepth {
		return &protocol.RecursiveSchemaError{Ref: path}
	}

	names, ok := typeNames(doc)
	if !ok {
		return invalid(path, "type must be a string or list of strings")
	}
	for _, name := range names {
		if !ValidType(name) {
			return invalid(path, "unknown type %q", name)
		}
	}

	if raw, ok := doc["subtype"]; ok {
		s, isStr := raw.(string)
		if !isStr || !ValidSubtype(s) {
			return invalid(path, "invalid subtype %v", raw)
		}
	}
	if raw, ok := doc["units"]; ok {
		if _, isStr := raw.(string); !isStr {
			return invalid(path, "units must be a string")
		}
	}
	if err := checkPositive(doc, path, "precision"); err != nil {
		return err
	}
	if err := checkPositive(doc, path, "length"); err != nil {
		return err
	}
	if raw, ok := doc["shape"]; ok {
		dims, isList := asList(raw)
		if !isList || len(dims) == 0 {
			return invalid(path, "shape must be a non-empty list")
		}
		for i, dim := range dims {
			n, isInt := asInt(dim)
			if !isInt || n < 1 {
				return invalid(fmt.Sprintf("%s/shape/%d", path, i), "dimension must be an integer >= 1")
			}
		}
	}

	for _, pair := range [][2]string{{"exclusiveMinimum", "minimum"}, {"exclusiveMaximum", "maximum"}} {
		if raw, ok := doc[pair[0]]; ok {
			if _, isBool := raw.(bool); !isBool {
				return invalid(path, "%s must be a boolean", pair[0])
			}
			if _, has := doc[pair[1]]; !has {
				return invalid(path, "%s requires %s", pair[0], pair[1])
			}
		}
	}
	for _, key := range []string{"minimum", "maximum"} {
		if raw, ok := doc[key]; ok {
			if _, isNum := asFloat(raw); !isNum {
				return invalid(path, "%s must be a number", key)
			}
		}
	}
	if raw, ok := doc["multipleOf"]; ok {
		f, isNum := asFloat(raw)
		if !isNum || f <= 0 {
			return invalid(path, "multipleOf must be > 0")
		}
	}
	for _, key := range []string{"minItems", "maxItems", "minLength", "maxLength", "minProperties", "maxProperties"} {
		if raw, ok := doc[key]; ok {
			n, isInt := asInt(raw)
			if !isInt || n < 0 {
				return invalid(path, "%s must be a non-negative integer", key)
			}
		}
	}
	for _, key := range []string{"uniqueItems"} {
		if raw, ok := doc[key]; ok {
			if _, isBool := raw.(bool); !isBool {
				return invalid(path, "%s must be a boolean", key)
			}
		}
	}
	if raw, ok := doc["pattern"]; ok {
		s, isStr := raw.(string)
		if !isStr {
			return invalid(path, "pattern must be a string")
		}
		if _, err := regexp.Compile(s); err != nil {
			return invalid(path, "pattern %q: %v", s, err)
		}
	}
	if raw, ok := doc["required"]; ok {
		items, isList := asList(raw)
		if !isList {
			return invalid(path, "required must be a list")
		}
		names := make([]string, 0, len(items))
		for _, item := range items {
			s, isStr := item.(string)
			if !isStr {
				return invalid(path, "required entries must be strings")
			}
			names = append(names, s)
		}
		if len(lo.Uniq(names)) != len(names) {
			return invalid(path, "required entries must be unique")
		}
	}
	if raw, ok := doc["enum"]; ok {
		items, isList := asList(raw)
		if !isList || len(items) == 0 {
			return invalid(path, "enum must be a non-empty list")
		}
	}
	if raw, ok := doc["$ref"]; ok {
		s, isStr := raw.(string)
		if !isStr || s == "" {
			return invalid(path, "$ref must be a non-empty string")
		}
	}

	return validateSubschemas(doc, path, depth)
}

func checkPositive(doc map[string]any, path, key string) error {
	raw, ok := doc[key]
	if !ok {
		return nil
	}
	n, isInt := asInt(raw)
	if !isInt || n < 1 {
		return invalid(path, "%s must be an integer >= 1", key)
	}
	return nil
}

func validateSubschemas(doc map[string]any, path string, depth int) error {
	if raw, ok := doc["items"]; ok {
		if sub, isMap := asMap(raw); isMap {
			if err := validateAt(sub, path+"/items", depth+1); err != nil {
				return err
			}
		} else if list, isList := asList(raw); isList {
			for i, item := range list {
				sub, isMap := asMap(item)
				if !isMap {
					return invalid(fmt.Sprintf("%s/items/%d", path, i), "must be a schema")
				}
				if err := validateAt(sub, fmt.Sprintf("%s/items/%d", path, i), depth+1); err != nil {
					return err
				}
			}
		} else {
			return invalid(path, "items must be a schema or list of schemas")
		}
	}

	for _, key := range subschemaSingle {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		if _, isBool := raw.(bool); isBool && key != "not" {
			continue
		}
		sub, isMap := asMap(raw)
		if !isMap {
			return invalid(path, "%s must be a schema", key)
		}
		if err := validateAt(sub, path+"/"+key, depth+1); err != nil {
			return err
		}
	}

	for _, key := range subschemaMaps {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		members, isMap := asMap(raw)
		if !isMap {
			return invalid(path, "%s must be an object", key)
		}
		for _, name := range sortedKeys(members) {
			at := path + "/" + key + "/" + escapePointer(name)
			if key == "patternProperties" {
				if _, err := regexp.Compile(name); err != nil {
					return invalid(at, "invalid pattern: %v", err)
				}
			}
			sub, isMap := asMap(members[name])
			if !isMap {
				return invalid(at, "must be a schema")
			}
			if err := validateAt(sub, at, depth+1); err != nil {
				return err
			}
		}
	}

	for _, key := range subschemaLists {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		list, isList := asList(raw)
		if !isList || len(list) == 0 {
			return invalid(path, "%s must be a non-empty list", key)
		}
		for i, item := range list {
			at := fmt.Sprintf("%s/%s/%d", path, key, i)
			sub, isMap := asMap(item)
			if !isMap {
				return invalid(at, "must be a schema")
			}
			if err := validateAt(sub, at, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func escapePointer(name string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(name)
}

func unescapePointer(token string) string {
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(token)
}

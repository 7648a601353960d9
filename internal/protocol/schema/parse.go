package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/danmuck/typechan/internal/protocol"
	"gopkg.in/yaml.v3"
)

// Parse decodes a type document from JSON or YAML. Input whose first
// non-space byte is '{' is read as JSON.
func Parse(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &protocol.SchemaError{Reason: "empty document"}
	}
	doc := map[string]any{}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, &protocol.SchemaError{Reason: fmt.Sprintf("parse json: %v", err)}
		}
		return doc, nil
	}
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, &protocol.SchemaError{Reason: fmt.Sprintf("parse yaml: %v", err)}
	}
	return doc, nil
}

// ParseFile reads and parses a type document from path.
func ParseFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return Parse(data)
}

// LoadFile parses, validates, normalizes and resolves the document at path.
func LoadFile(path string) (*Descriptor, error) {
	doc, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Load(doc)
}

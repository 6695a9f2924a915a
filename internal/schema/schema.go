package schema

import (
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"
)

// Object is a flattened JSON Schema for an object value: the shape tool
// servers advertise as inputSchema and the shape of structured model
// replies.
type Object struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// Generate produces an Object schema from a Go struct type T.
// It uses struct tags (json, jsonschema) to derive the JSON Schema.
func Generate[T any]() Object {
	var zero T
	s := jsonschema.Reflect(&zero)

	// The top-level schema wraps the actual type; extract properties and required
	// from the root definition.
	root := extractRoot(s)

	return Object{
		Type:       "object",
		Properties: schemaProperties(root),
		Required:   root.Required,
	}
}

// GenerateJSON is a convenience that returns the schema as raw JSON bytes.
func GenerateJSON[T any]() (json.RawMessage, error) {
	return json.Marshal(Generate[T]())
}

// Parse decodes a raw schema advertised by a tool server. Unparseable or
// empty input yields an object schema with no properties.
func Parse(raw json.RawMessage) Object {
	obj := Object{Type: "object"}
	if len(raw) == 0 {
		return obj
	}
	var parsed struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return obj
	}
	if parsed.Type != "" {
		obj.Type = parsed.Type
	}
	obj.Properties = parsed.Properties
	obj.Required = parsed.Required
	return obj
}

// PropertyNames returns the property names in sorted order.
func (o Object) PropertyNames() []string {
	names := make([]string, 0, len(o.Properties))
	for k := range o.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PropertyType returns the declared type of a property, or "" if unknown.
func (o Object) PropertyType(name string) string {
	p, ok := o.Properties[name].(map[string]any)
	if !ok {
		return ""
	}
	t, _ := p["type"].(string)
	return t
}

// IsRequired reports whether name is listed as required.
func (o Object) IsRequired(name string) bool {
	for _, r := range o.Required {
		if r == name {
			return true
		}
	}
	return false
}

// extractRoot resolves the root schema, following $ref to $defs if needed.
func extractRoot(s *jsonschema.Schema) *jsonschema.Schema {
	if s.Ref != "" && s.Definitions != nil {
		// invopop/jsonschema puts the actual type under $defs with a ref like
		// "#/$defs/TypeName".
		for _, def := range s.Definitions {
			if def.Type == "object" {
				return def
			}
		}
	}
	return s
}

// schemaProperties converts an ordered map of properties into a plain
// map[string]any.
func schemaProperties(s *jsonschema.Schema) map[string]any {
	if s.Properties == nil {
		return nil
	}
	props := make(map[string]any)
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		props[pair.Key] = propertySchema(pair.Value)
	}
	return props
}

// propertySchema converts a single property schema to a serializable map.
func propertySchema(s *jsonschema.Schema) map[string]any {
	m := make(map[string]any)

	if s.Type != "" {
		m["type"] = s.Type
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Default != nil {
		m["default"] = s.Default
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}

	// Pointer types come through as anyOf with a null arm.
	if len(s.AnyOf) > 0 {
		for _, sub := range s.AnyOf {
			if sub.Type != "null" && sub.Type != "" {
				m["type"] = sub.Type
				break
			}
		}
	}

	if s.Properties != nil {
		m["type"] = "object"
		m["properties"] = schemaProperties(s)
		if len(s.Required) > 0 {
			m["required"] = s.Required
		}
	}

	if s.Items != nil {
		m["items"] = propertySchema(s.Items)
	}

	return m
}

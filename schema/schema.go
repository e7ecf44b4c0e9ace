// Package schema reflects Go input structs into JSON Schema objects that
// every supported vendor's function-calling dialect accepts.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Reflector is configured for tool input schemas.
// DoNotReference inlines all definitions to avoid $ref.
var Reflector = &jsonschema.Reflector{
	DoNotReference: true,
}

// Generate creates a JSON Schema from a Go type.
// The type should be a struct with json and jsonschema tags.
//
// Example:
//
//	type EditInput struct {
//	    FilePath   string `json:"file_path" jsonschema:"description=File to edit"`
//	    OldContent string `json:"old_content"`
//	    Mode       string `json:"mode,omitempty" jsonschema:"enum=replace,enum=append"`
//	}
//
//	schema, err := schema.Generate[EditInput]()
func Generate[T any]() (json.RawMessage, error) {
	var zero T
	schema := Reflector.Reflect(&zero)
	return json.Marshal(schema)
}

// ForTool generates the schema for a tool input type. The draft markers
// ($schema, $id) are removed, the root is forced to type object and an
// empty properties map is added when T has no fields.
func ForTool[T any]() (json.RawMessage, error) {
	raw, err := Generate[T]()
	if err != nil {
		return nil, err
	}
	return Normalize(raw)
}

// Normalize applies the ForTool rules to an existing schema document, such
// as one received from an MCP server.
func Normalize(raw json.RawMessage) (json.RawMessage, error) {
	doc := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing schema: %w", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	}

	delete(doc, "$schema")
	delete(doc, "$id")
	doc["type"] = "object"
	if _, ok := doc["properties"].(map[string]any); !ok {
		doc["properties"] = map[string]any{}
	}

	return json.Marshal(doc)
}

// MustForTool is like ForTool but panics on error.
// Useful for package-level schema definitions.
func MustForTool[T any]() json.RawMessage {
	schema, err := ForTool[T]()
	if err != nil {
		panic(err)
	}
	return schema
}

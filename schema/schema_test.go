package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type editInput struct {
	FilePath   string `json:"file_path" jsonschema:"required,description=File to edit"`
	OldContent string `json:"old_content" jsonschema:"required"`
	NewContent string `json:"new_content,omitempty"`
}

type testTarget struct {
	Scheme string `json:"scheme"`
	Target string `json:"target"`
}

type runInput struct {
	ID     string     `json:"id" jsonschema:"required"`
	Target testTarget `json:"target"`
}

type searchInput struct {
	Patterns []string          `json:"patterns"`
	Env      map[string]string `json:"env"`
	Path     *string           `json:"path,omitempty"`
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name      string
		generator func() (json.RawMessage, error)
		props     []string
	}{
		{name: "flat", generator: Generate[editInput], props: []string{"file_path", "old_content", "new_content"}},
		{name: "nested", generator: Generate[runInput], props: []string{"id", "target"}},
		{name: "collections and pointers", generator: Generate[searchInput], props: []string{"patterns", "env", "path"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.generator()
			require.NoError(t, err)
			require.True(t, json.Valid(raw))

			var parsed map[string]any
			require.NoError(t, json.Unmarshal(raw, &parsed))
			assert.Equal(t, "object", parsed["type"])

			props, ok := parsed["properties"].(map[string]any)
			require.True(t, ok, "schema should have properties")
			for _, prop := range tt.props {
				assert.Contains(t, props, prop)
			}
		})
	}
}

func TestGenerate_RequiredAndDescription(t *testing.T) {
	raw, err := Generate[editInput]()
	require.NoError(t, err)

	var parsed struct {
		Required   []string                  `json:"required"`
		Properties map[string]map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &parsed))

	assert.ElementsMatch(t, []string{"file_path", "old_content"}, parsed.Required)
	assert.Equal(t, "File to edit", parsed.Properties["file_path"]["description"])
}

func TestMustForTool(t *testing.T) {
	t.Run("valid type does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			schema := MustForTool[editInput]()
			assert.NotEmpty(t, schema)
		})
	})
}

type operationInput struct {
	Operation string `json:"operation" jsonschema:"enum=list,enum=read,description=What to do"`
	Path      string `json:"path,omitempty"`
}

type emptyInput struct{}

func TestForTool(t *testing.T) {
	raw, err := ForTool[operationInput]()
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))

	assert.NotContains(t, parsed, "$schema")
	assert.NotContains(t, parsed, "$id")
	assert.Equal(t, "object", parsed["type"])
	assert.Equal(t, []any{"operation"}, parsed["required"])

	props := parsed["properties"].(map[string]any)
	op := props["operation"].(map[string]any)
	assert.Equal(t, []any{"list", "read"}, op["enum"])
	assert.Equal(t, "What to do", op["description"])
}

func TestForTool_EmptyStruct(t *testing.T) {
	raw, err := ForTool[emptyInput]()
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "object", parsed["type"])
	assert.Equal(t, map[string]any{}, parsed["properties"])
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: ``, want: `{"type":"object","properties":{}}`},
		{name: "null", in: `null`, want: `{"type":"object","properties":{}}`},
		{
			name: "mcp schema",
			in:   `{"$schema":"https://json-schema.org/draft/2020-12/schema","type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`,
			want: `{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(json.RawMessage(tt.in))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	_, err := Normalize(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestReflector_DoNotReference(t *testing.T) {
	assert.True(t, Reflector.DoNotReference)

	raw, err := Generate[runInput]()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "$ref", "nested types are inlined")
}

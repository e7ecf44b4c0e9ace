package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name            string
		input           string
		wantFrontmatter string
		wantBody        string
	}{
		{
			name: "valid frontmatter",
			input: `---
description: Test prompt
---
This is the body.`,
			wantFrontmatter: "description: Test prompt",
			wantBody:        "This is the body.",
		},
		{
			name:     "no frontmatter",
			input:    "Just a body.",
			wantBody: "Just a body.",
		},
		{
			name: "frontmatter without closing delimiter",
			input: `---
description: Test
This is content`,
			wantBody: "---\ndescription: Test\nThis is content",
		},
		{
			name: "empty frontmatter",
			input: `---
---
Body only.`,
			wantBody: "Body only.",
		},
		{
			name:  "empty input",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body, err := splitFrontmatter([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.wantFrontmatter, string(fm))
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func sampleFailure() Failure {
	return Failure{
		TestName:       "testLogin()",
		TestIdentifier: "test://com.apple.xcode/Sampler/SamplerUITests/LoginUITests/testLogin",
		Message:        "No matches found for Button \"Login\"",
		TestFile:       "/ws/SamplerUITests/LoginUITests.swift",
		TestSource:     "func testLogin() { app.buttons[\"Login\"].tap() }",
		Workspace:      "/ws",
	}
}

func TestBuiltin_KnightRider(t *testing.T) {
	tmpl, err := Builtin(ModeKnightRider)
	require.NoError(t, err)
	assert.Equal(t, []string{"directory_inspector", "code_editor", "test_runner"}, tmpl.Tools)
	assert.NotEmpty(t, tmpl.Description)

	out, err := tmpl.Render(sampleFailure())
	require.NoError(t, err)
	assert.Contains(t, out, "**Failed Test:** testLogin()")
	assert.Contains(t, out, "**Workspace Path:** /ws")
	assert.Contains(t, out, `app.buttons["Login"].tap()`)
	assert.Contains(t, out, "THE TEST IS THE SOURCE OF TRUTH")
	assert.Contains(t, out, "No simulator snapshot was available")
	assert.Contains(t, out, "GIVING UP:")
	assert.Contains(t, out, "File: <path to the source file>")
	assert.Contains(t, out, "Line: <line number>")
	assert.Contains(t, out, "Use this full identifier when calling test_runner.")

	f := sampleFailure()
	f.HasSnapshot = true
	out, err = tmpl.Render(f)
	require.NoError(t, err)
	assert.Contains(t, out, "I've attached the latest simulator screenshot")
}

func TestBuiltin_Standard(t *testing.T) {
	tmpl, err := Builtin(ModeStandard)
	require.NoError(t, err)
	assert.True(t, tmpl.AllowsTool("directory_inspector"))
	assert.False(t, tmpl.AllowsTool("code_editor"))

	out, err := tmpl.Render(sampleFailure())
	require.NoError(t, err)
	assert.Contains(t, out, "THE APPLICATION CODE IS CORRECT")
	assert.Contains(t, out, "GIVING UP:")
	assert.NotContains(t, out, "Workspace Path")
}

func TestBuiltin_Unknown(t *testing.T) {
	_, err := Builtin("turbo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "knightrider, standard")
}

func TestBuiltins(t *testing.T) {
	assert.Equal(t, []string{ModeKnightRider, ModeStandard}, Builtins())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "terse.md")
	require.NoError(t, os.WriteFile(path, []byte(`---
description: Terse
---
Fix {{.TestName}} in {{.Workspace}}.`), 0o644))

	tmpl, err := Resolve(ModeKnightRider, path)
	require.NoError(t, err)
	assert.Equal(t, "terse", tmpl.Name)
	assert.Equal(t, path, tmpl.FilePath)
	assert.True(t, tmpl.AllowsTool("anything"), "no tool list permits all")

	out, err := tmpl.Render(sampleFailure())
	require.NoError(t, err)
	assert.Equal(t, "Fix testLogin() in /ws.", out)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("bad-yaml", []byte("---\ntools: [unclosed\n---\nbody"))
	assert.Error(t, err)

	_, err = Parse("bad-template", []byte("Fix {{.TestName"))
	assert.Error(t, err)

	tmpl, err := Parse("bad-field", []byte("Fix {{.Nope}}"))
	require.NoError(t, err)
	_, err = tmpl.Render(sampleFailure())
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}

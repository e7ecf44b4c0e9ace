// Package prompt renders the initial message of a repair session from a
// markdown template with YAML frontmatter.
package prompt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Built-in template names.
const (
	// ModeKnightRider lets the agent edit application code and re-run the
	// test until it passes. The test is the source of truth.
	ModeKnightRider = "knightrider"
	// ModeStandard asks for analysis and suggestions only.
	ModeStandard = "standard"
)

//go:embed templates/*.md
var builtinFS embed.FS

// Failure describes the failing test a session is started for.
type Failure struct {
	TestName       string
	TestIdentifier string
	Message        string
	TestFile       string
	TestSource     string
	Workspace      string
	HasSnapshot    bool
}

// Template is a parsed prompt template.
type Template struct {
	Name        string   // Derived from filename
	Description string   // From frontmatter
	Tools       []string // Tools the session may offer; empty means all
	Body        string   // text/template source
	FilePath    string   // Original file path, empty for built-ins

	tmpl *template.Template
}

type frontmatter struct {
	Description string   `yaml:"description"`
	Tools       []string `yaml:"tools"`
}

// Parse parses template data. name identifies the template in errors.
func Parse(name string, data []byte) (*Template, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}

	t := &Template{Name: name, Body: body}
	if len(fm) > 0 {
		var meta frontmatter
		if err := yaml.Unmarshal(fm, &meta); err != nil {
			return nil, fmt.Errorf("parsing template %s frontmatter: %w", name, err)
		}
		t.Description = meta.Description
		t.Tools = meta.Tools
	}

	t.tmpl, err = template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	return t, nil
}

// Load reads and parses a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	t, err := Parse(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), data)
	if err != nil {
		return nil, err
	}
	t.FilePath = path
	return t, nil
}

// Builtin returns the built-in template for mode.
func Builtin(mode string) (*Template, error) {
	data, err := builtinFS.ReadFile("templates/" + mode + ".md")
	if err != nil {
		return nil, fmt.Errorf("unknown prompt mode %q (available: %s)", mode, strings.Join(Builtins(), ", "))
	}
	return Parse(mode, data)
}

// Builtins lists the built-in template names.
func Builtins() []string {
	entries, err := builtinFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(names)
	return names
}

// Resolve returns the template at path when set, otherwise the built-in for
// mode.
func Resolve(mode, path string) (*Template, error) {
	if path != "" {
		return Load(path)
	}
	return Builtin(mode)
}

// Render executes the template for f.
func (t *Template) Render(f Failure) (string, error) {
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, f); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", t.Name, err)
	}
	return sb.String(), nil
}

// AllowsTool reports whether the template permits a tool. A template that
// lists no tools permits all of them.
func (t *Template) AllowsTool(name string) bool {
	if len(t.Tools) == 0 {
		return true
	}
	for _, allowed := range t.Tools {
		if allowed == name {
			return true
		}
	}
	return false
}

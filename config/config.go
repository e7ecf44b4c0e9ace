// Package config loads autofix settings from a YAML or TOML file, then
// applies environment overrides. Command-line flags are applied last by the
// caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/i2y/autofix/provider"
)

// File is the on-disk configuration.
type File struct {
	Provider  ProviderSection  `yaml:"provider" toml:"provider"`
	Agent     AgentSection     `yaml:"agent" toml:"agent"`
	Workspace WorkspaceSection `yaml:"workspace" toml:"workspace"`
	MCP       []MCPServer      `yaml:"mcp" toml:"mcp"`
}

// ProviderSection selects and configures the model backend. Unset fields
// take the per-provider defaults.
type ProviderSection struct {
	Type         string `yaml:"type" toml:"type"`
	APIKey       string `yaml:"api_key" toml:"api_key"`
	APIBase      string `yaml:"api_base" toml:"api_base"`
	Model        string `yaml:"model" toml:"model"`
	TimeoutSecs  *int   `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries   *int   `yaml:"max_retries" toml:"max_retries"`
	RateLimitTPM *int   `yaml:"rate_limit_tpm" toml:"rate_limit_tpm"`
}

// AgentSection bounds a repair session.
type AgentSection struct {
	MaxIterations int      `yaml:"max_iterations" toml:"max_iterations"`
	MaxTokens     int      `yaml:"max_tokens" toml:"max_tokens"`
	Temperature   *float64 `yaml:"temperature" toml:"temperature"`
	PromptMode    string   `yaml:"prompt_mode" toml:"prompt_mode"`
	PromptFile    string   `yaml:"prompt_file" toml:"prompt_file"`
}

// WorkspaceSection describes the project under repair.
type WorkspaceSection struct {
	Root            string `yaml:"root" toml:"root"`
	TestCommand     string `yaml:"test_command" toml:"test_command"`
	Destination     string `yaml:"destination" toml:"destination"`
	TestTimeoutSecs int    `yaml:"test_timeout_secs" toml:"test_timeout_secs"`
}

// MCPServer is a stdio MCP server whose tools are offered to the agent.
type MCPServer struct {
	Name        string   `yaml:"name" toml:"name"`
	Command     string   `yaml:"command" toml:"command"`
	Args        []string `yaml:"args" toml:"args"`
	TimeoutSecs int      `yaml:"timeout_secs" toml:"timeout_secs"`
}

// Session defaults.
const (
	DefaultMaxIterations = 20
	DefaultMaxTokens     = 1024
	DefaultTemperature   = 0.7
	DefaultPromptMode    = "knightrider"
)

// Load reads path (when non-empty), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*File, error) {
	f := &File{}
	if path != "" {
		var err error
		if f, err = ReadFile(path); err != nil {
			return nil, err
		}
	}

	if err := f.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	f.SetDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadFile decodes a configuration file. The format is chosen by extension:
// .toml for TOML, .yaml or .yml for YAML.
func ReadFile(path string) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	f, err := Parse(data, strings.TrimPrefix(filepath.Ext(absPath), "."))
	if err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", absPath, err)
	}
	return f, nil
}

// Parse decodes data in the given format ("yaml", "yml" or "toml").
func Parse(data []byte, format string) (*File, error) {
	var f File
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	case "toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .yaml, .yml or .toml)", format)
	}
	return &f, nil
}

// SetDefaults fills unset session settings.
func (f *File) SetDefaults() {
	if f.Agent.MaxIterations <= 0 {
		f.Agent.MaxIterations = DefaultMaxIterations
	}
	if f.Agent.MaxTokens <= 0 {
		f.Agent.MaxTokens = DefaultMaxTokens
	}
	if f.Agent.Temperature == nil {
		t := DefaultTemperature
		f.Agent.Temperature = &t
	}
	if f.Agent.PromptMode == "" {
		f.Agent.PromptMode = DefaultPromptMode
	}
	for i := range f.MCP {
		if f.MCP[i].Name == "" {
			f.MCP[i].Name = filepath.Base(f.MCP[i].Command)
		}
	}
}

// Validate performs sanity checks that need no network access.
func (f *File) Validate() error {
	if f.Provider.Type != "" {
		if _, err := provider.ParseType(f.Provider.Type); err != nil {
			return err
		}
	}
	if t := f.Agent.Temperature; t != nil && (*t < 0 || *t > 2) {
		return &provider.ConfigurationError{Message: fmt.Sprintf("agent.temperature must be between 0 and 2, got %g", *t)}
	}
	for i, s := range f.MCP {
		if strings.TrimSpace(s.Command) == "" {
			return &provider.ConfigurationError{Message: fmt.Sprintf("mcp[%d]: command must be provided", i)}
		}
	}
	return nil
}

// ProviderConfig resolves the provider section against the per-provider
// defaults. The result has not been validated against the adapter.
func (f *File) ProviderConfig() (provider.Config, error) {
	typ := provider.TypeClaude
	if f.Provider.Type != "" {
		var err error
		if typ, err = provider.ParseType(f.Provider.Type); err != nil {
			return provider.Config{}, err
		}
	}

	cfg := Defaults(typ)
	p := f.Provider
	if p.APIKey != "" {
		cfg.APIKey = provider.Secret(p.APIKey)
	}
	if p.APIBase != "" {
		cfg.APIBase = p.APIBase
	}
	if p.Model != "" {
		cfg.Model = p.Model
	}
	if p.TimeoutSecs != nil {
		cfg.TimeoutSecs = *p.TimeoutSecs
	}
	if p.MaxRetries != nil {
		cfg.MaxRetries = *p.MaxRetries
	}
	if p.RateLimitTPM != nil {
		tpm := *p.RateLimitTPM
		cfg.RateLimitTPM = &tpm
	}
	return cfg, nil
}

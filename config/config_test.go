package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/autofix/provider"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	tests := []struct {
		typ     provider.Type
		base    string
		model   string
		timeout int
		tpm     int
	}{
		{provider.TypeClaude, "https://api.anthropic.com", "claude-sonnet-4", 30, 30000},
		{provider.TypeOpenAI, "https://api.openai.com/v1", "gpt-4", 30, 90000},
		{provider.TypeOllama, "http://localhost:11434/v1", "llama2", 120, 0},
		{provider.TypeGemini, "https://generativelanguage.googleapis.com", "gemini-2.5-flash", 60, 60000},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			cfg := Defaults(tt.typ)
			assert.Equal(t, tt.typ, cfg.Type)
			assert.Equal(t, tt.base, cfg.APIBase)
			assert.Equal(t, tt.model, cfg.Model)
			assert.Equal(t, tt.timeout, cfg.TimeoutSecs)
			assert.Equal(t, 3, cfg.MaxRetries)
			assert.Equal(t, tt.tpm, cfg.TokensPerMinute())
		})
	}

	assert.Equal(t, "ollama", Defaults(provider.TypeOllama).APIKey.Reveal())
	assert.False(t, Defaults(provider.TypeOllama).RateLimitEnabled())
}

const yamlConfig = `
provider:
  type: openai
  model: gpt-4o
  rate_limit_tpm: 0
agent:
  max_iterations: 5
  temperature: 0
  prompt_mode: standard
workspace:
  root: /ws
  test_command: /usr/bin/xcodebuild
mcp:
  - command: /opt/bin/simulator-mcp
    args: ["--stdio"]
`

const tomlConfig = `
[provider]
type = "gemini"
api_base = "https://proxy.example.com"
timeout_secs = 10

[agent]
max_tokens = 2048

[[mcp]]
name = "sim"
command = "simulator-mcp"
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(yamlConfig), "yaml")
	require.NoError(t, err)
	assert.Equal(t, "openai", f.Provider.Type)
	assert.Equal(t, "gpt-4o", f.Provider.Model)
	require.NotNil(t, f.Provider.RateLimitTPM)
	assert.Equal(t, 0, *f.Provider.RateLimitTPM)
	assert.Equal(t, 5, f.Agent.MaxIterations)
	require.NotNil(t, f.Agent.Temperature)
	assert.Zero(t, *f.Agent.Temperature)
	assert.Equal(t, "/ws", f.Workspace.Root)
	require.Len(t, f.MCP, 1)
	assert.Equal(t, []string{"--stdio"}, f.MCP[0].Args)

	f, err = Parse([]byte(tomlConfig), "toml")
	require.NoError(t, err)
	assert.Equal(t, "gemini", f.Provider.Type)
	require.NotNil(t, f.Provider.TimeoutSecs)
	assert.Equal(t, 10, *f.Provider.TimeoutSecs)
	assert.Equal(t, 2048, f.Agent.MaxTokens)
	require.Len(t, f.MCP, 1)
	assert.Equal(t, "sim", f.MCP[0].Name)

	_, err = Parse([]byte("{}"), "json")
	assert.Error(t, err)
	_, err = Parse([]byte("provider: [unclosed"), "yml")
	assert.Error(t, err)
}

func TestProviderConfig(t *testing.T) {
	f, err := Parse([]byte(yamlConfig), "yaml")
	require.NoError(t, err)

	cfg, err := f.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, provider.TypeOpenAI, cfg.Type)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.APIBase, "unset fields keep the default")
	assert.False(t, cfg.RateLimitEnabled(), "explicit zero disables limiting")

	cfg, err = (&File{}).ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, provider.TypeClaude, cfg.Type)
	assert.Equal(t, 30000, cfg.TokensPerMinute())

	_, err = (&File{Provider: ProviderSection{Type: "bard"}}).ProviderConfig()
	var cfgErr *provider.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestApplyEnv(t *testing.T) {
	f, err := Parse([]byte(tomlConfig), "toml")
	require.NoError(t, err)

	err = f.ApplyEnv(envMap(map[string]string{
		EnvModel:         "gemini-2.5-pro",
		EnvTimeoutSecs:   "45",
		EnvRateLimitTPM:  "1000",
		"GEMINI_API_KEY": "AIzaTestKey",
		"OPENAI_API_KEY": "sk-ignored",
	}))
	require.NoError(t, err)

	cfg, err := f.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, provider.TypeGemini, cfg.Type)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
	assert.Equal(t, "https://proxy.example.com", cfg.APIBase)
	assert.Equal(t, 45, cfg.TimeoutSecs)
	assert.Equal(t, 1000, cfg.TokensPerMinute())
	assert.Equal(t, "AIzaTestKey", cfg.APIKey.Reveal())
}

func TestApplyEnv_ProviderSwitch(t *testing.T) {
	f := &File{}
	require.NoError(t, f.ApplyEnv(envMap(map[string]string{
		EnvProvider:         "OLLAMA",
		"ANTHROPIC_API_KEY": "sk-ant-ignored",
	})))

	cfg, err := f.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, provider.TypeOllama, cfg.Type)
	assert.Equal(t, "ollama", cfg.APIKey.Reveal())
	assert.Equal(t, 120, cfg.TimeoutSecs)
}

func TestApplyEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad integer", map[string]string{EnvMaxRetries: "three"}},
		{"negative", map[string]string{EnvTimeoutSecs: "-1"}},
		{"unknown provider", map[string]string{EnvProvider: "bard"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&File{}).ApplyEnv(envMap(tt.env))
			var cfgErr *provider.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestSetDefaultsAndValidate(t *testing.T) {
	f := &File{MCP: []MCPServer{{Command: "/opt/bin/simulator-mcp"}}}
	f.SetDefaults()
	assert.Equal(t, DefaultMaxIterations, f.Agent.MaxIterations)
	assert.Equal(t, DefaultMaxTokens, f.Agent.MaxTokens)
	assert.InDelta(t, DefaultTemperature, *f.Agent.Temperature, 1e-9)
	assert.Equal(t, DefaultPromptMode, f.Agent.PromptMode)
	assert.Equal(t, "simulator-mcp", f.MCP[0].Name)
	assert.NoError(t, f.Validate())

	hot := 3.0
	assert.Error(t, (&File{Agent: AgentSection{Temperature: &hot}}).Validate())
	assert.Error(t, (&File{MCP: []MCPServer{{Name: "x"}}}).Validate())
	assert.Error(t, (&File{Provider: ProviderSection{Type: "bard"}}).Validate())
}

func TestLoad(t *testing.T) {
	for _, k := range []string{EnvProvider, EnvAPIBase, EnvModel, EnvTimeoutSecs, EnvMaxRetries, EnvRateLimitTPM, "OPENAI_API_KEY"} {
		t.Setenv(k, "")
	}
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "autofix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, f.Agent.MaxIterations)
	assert.Equal(t, DefaultMaxTokens, f.Agent.MaxTokens)

	cfg, err := f.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.APIKey.Reveal())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	f, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPromptMode, f.Agent.PromptMode)
}

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/i2y/autofix/provider"
)

// Environment variables read by ApplyEnv.
const (
	EnvProvider     = "AUTOFIX_PROVIDER"
	EnvAPIBase      = "AUTOFIX_API_BASE"
	EnvModel        = "AUTOFIX_MODEL"
	EnvTimeoutSecs  = "AUTOFIX_TIMEOUT_SECS"
	EnvMaxRetries   = "AUTOFIX_MAX_RETRIES"
	EnvRateLimitTPM = "AUTOFIX_RATE_LIMIT_TPM"
)

// keyEnv names the credential variable for each provider. Ollama needs none.
var keyEnv = map[provider.Type]string{
	provider.TypeClaude: "ANTHROPIC_API_KEY",
	provider.TypeOpenAI: "OPENAI_API_KEY",
	provider.TypeGemini: "GEMINI_API_KEY",
}

// KeyEnv returns the credential variable for t, or "" when t needs none.
func KeyEnv(t provider.Type) string {
	return keyEnv[t]
}

// ApplyEnv overrides file settings with environment variables. lookup is
// normally os.LookupEnv.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvProvider); ok {
		f.Provider.Type = v
	}
	if v, ok := get(EnvAPIBase); ok {
		f.Provider.APIBase = v
	}
	if v, ok := get(EnvModel); ok {
		f.Provider.Model = v
	}

	ints := []struct {
		name string
		dst  **int
	}{
		{EnvTimeoutSecs, &f.Provider.TimeoutSecs},
		{EnvMaxRetries, &f.Provider.MaxRetries},
		{EnvRateLimitTPM, &f.Provider.RateLimitTPM},
	}
	for _, e := range ints {
		v, ok := get(e.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return &provider.ConfigurationError{Message: fmt.Sprintf("%s must be a non-negative integer, got %q", e.name, v)}
		}
		*e.dst = &n
	}

	typ := provider.TypeClaude
	if f.Provider.Type != "" {
		t, err := provider.ParseType(f.Provider.Type)
		if err != nil {
			return err
		}
		typ = t
	}
	if name := KeyEnv(typ); name != "" {
		if v, ok := get(name); ok {
			f.Provider.APIKey = v
		}
	}
	return nil
}

package provider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Type identifies a supported backend.
type Type string

const (
	TypeClaude Type = "claude"
	TypeOpenAI Type = "openai"
	TypeOllama Type = "ollama"
	TypeGemini Type = "gemini"
)

// ParseType parses a provider type, ignoring case.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeClaude, TypeOpenAI, TypeOllama, TypeGemini:
		return t, nil
	default:
		return "", &ConfigurationError{Message: fmt.Sprintf("unknown provider type: %q", s)}
	}
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

const redacted = "[REDACTED]"

// Secret holds a credential. It never renders its value through fmt, slog,
// JSON or YAML; call Reveal to obtain it.
type Secret string

// Reveal returns the raw credential.
func (s Secret) Reveal() string {
	return string(s)
}

// IsEmpty reports whether no credential is set.
func (s Secret) IsEmpty() bool {
	return strings.TrimSpace(string(s)) == ""
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return `provider.Secret("` + s.String() + `")`
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Config carries everything an adapter needs before any network use.
type Config struct {
	Type         Type
	APIKey       Secret
	APIBase      string
	Model        string
	TimeoutSecs  int
	MaxRetries   int
	RateLimitTPM *int
}

// Timeout returns the per-request timeout.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RateLimitEnabled reports whether a token budget is configured.
// An absent or zero budget disables limiting.
func (c Config) RateLimitEnabled() bool {
	return c.RateLimitTPM != nil && *c.RateLimitTPM > 0
}

// TokensPerMinute returns the configured budget, or 0 when disabled.
func (c Config) TokensPerMinute() int {
	if !c.RateLimitEnabled() {
		return 0
	}
	return *c.RateLimitTPM
}

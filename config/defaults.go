package config

import "github.com/i2y/autofix/provider"

func intPtr(n int) *int { return &n }

// Defaults returns the built-in settings for a provider type.
func Defaults(t provider.Type) provider.Config {
	switch t {
	case provider.TypeOpenAI:
		return provider.Config{
			Type:         t,
			APIBase:      "https://api.openai.com/v1",
			Model:        "gpt-4",
			TimeoutSecs:  30,
			MaxRetries:   3,
			RateLimitTPM: intPtr(90000),
		}
	case provider.TypeOllama:
		// Local models are slow and unmetered.
		return provider.Config{
			Type:        t,
			APIKey:      "ollama",
			APIBase:     "http://localhost:11434/v1",
			Model:       "llama2",
			TimeoutSecs: 120,
			MaxRetries:  3,
		}
	case provider.TypeGemini:
		return provider.Config{
			Type:         t,
			APIBase:      "https://generativelanguage.googleapis.com",
			Model:        "gemini-2.5-flash",
			TimeoutSecs:  60,
			MaxRetries:   3,
			RateLimitTPM: intPtr(60000),
		}
	default:
		return provider.Config{
			Type:         provider.TypeClaude,
			APIBase:      "https://api.anthropic.com",
			Model:        "claude-sonnet-4",
			TimeoutSecs:  30,
			MaxRetries:   3,
			RateLimitTPM: intPtr(30000),
		}
	}
}

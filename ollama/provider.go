// Package ollama provides the local Ollama adapter. It speaks the
// OpenAI-compatible API exposed by Ollama and never leaves the machine.
package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/i2y/autofix/openai"
	"github.com/i2y/autofix/provider"
)

// defaultAPIKey is sent when none is configured; Ollama ignores it.
const defaultAPIKey = "ollama"

func init() {
	provider.Register(provider.TypeOllama, func(cfg provider.Config) (provider.Provider, error) {
		return New(cfg)
	}, Validate)
}

// Provider adapts a local Ollama server.
type Provider struct {
	inner *openai.Provider
	model string
}

// Option configures the Ollama provider.
type Option = openai.Option

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return openai.WithHTTPClient(c)
}

// Validate checks cfg against the Ollama rules. Only loopback endpoints
// are accepted.
func Validate(cfg provider.Config) error {
	fail := func(msg string) error {
		return &provider.ConfigurationError{Provider: provider.TypeOllama, Message: msg}
	}
	switch {
	case cfg.Type != provider.TypeOllama:
		return fail("invalid provider type: " + cfg.Type.String())
	case !isLoopbackEndpoint(cfg.APIBase):
		return fail("API base must be http://localhost:<port>, http://127.0.0.1:<port> or http://[::1]:<port>")
	case strings.TrimSpace(cfg.Model) == "":
		return fail("model is required")
	}
	return nil
}

// isLoopbackEndpoint reports whether base is a plain http URL naming a
// loopback host and an explicit port.
func isLoopbackEndpoint(base string) bool {
	u, err := url.Parse(base)
	if err != nil || u.Scheme != "http" || u.User != nil || u.Opaque != "" {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
	default:
		return false
	}
	port, err := strconv.Atoi(u.Port())
	return err == nil && port > 0 && port <= 65535
}

// New creates a new Ollama provider from a validated config.
func New(cfg provider.Config, opts ...Option) (*Provider, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey.IsEmpty() {
		cfg.APIKey = defaultAPIKey
	}
	return &Provider{
		inner: openai.NewCompatible(provider.TypeOllama, cfg, opts...),
		model: cfg.Model,
	}, nil
}

// Type returns the provider identifier.
func (p *Provider) Type() provider.Type {
	return provider.TypeOllama
}

// Complete implements provider.Provider. Tool definitions are dropped and
// missing usage is estimated from the reply.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	resp, err := p.inner.Complete(ctx, withoutTools(req))
	if err != nil {
		return nil, err
	}
	openai.UsageFallback(resp)
	return resp, nil
}

// CompleteStream implements provider.StreamingProvider.
func (p *Provider) CompleteStream(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	return p.inner.CompleteStream(ctx, withoutTools(req))
}

// EstimateTokens implements provider.Provider. Tools are not counted since
// they are never sent.
func (p *Provider) EstimateTokens(req *provider.Request) int {
	return provider.EstimateTokens(req, false, provider.DefaultEstimatedOutputTokens)
}

// MaxContextLength implements provider.Provider.
func (p *Provider) MaxContextLength() int {
	switch {
	case strings.Contains(p.model, "codellama"):
		return 16384
	case strings.Contains(p.model, "mistral"):
		return 32768
	case strings.Contains(p.model, "llama2"):
		return 4096
	case strings.Contains(p.model, "llama3"):
		return 8192
	case strings.Contains(p.model, "phi"):
		return 2048
	default:
		return 4096
	}
}

// SupportsStreaming implements provider.Provider.
func (p *Provider) SupportsStreaming() bool { return true }

// SupportsTools implements provider.Provider.
func (p *Provider) SupportsTools() bool { return false }

func withoutTools(req *provider.Request) *provider.Request {
	if len(req.Tools) == 0 {
		return req
	}
	stripped := *req
	stripped.Tools = nil
	return &stripped
}

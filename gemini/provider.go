// Package gemini provides the Google Gemini adapter over generateContent.
// It does not stream.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/i2y/autofix/provider"
)

const contextLength = 1048576

func init() {
	provider.Register(provider.TypeGemini, func(cfg provider.Config) (provider.Provider, error) {
		return New(cfg)
	}, Validate)
}

// Provider implements the Gemini API.
type Provider struct {
	client *client
	model  string
}

// Option configures the Gemini provider.
type Option func(*providerConfig)

type providerConfig struct {
	httpClient *http.Client
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *providerConfig) {
		c.httpClient = client
	}
}

// Validate checks cfg against the Gemini rules without touching the network.
func Validate(cfg provider.Config) error {
	fail := func(msg string) error {
		return &provider.ConfigurationError{Provider: provider.TypeGemini, Message: msg}
	}
	switch {
	case cfg.Type != provider.TypeGemini:
		return fail("invalid provider type: " + cfg.Type.String())
	case cfg.APIKey.IsEmpty():
		return fail("API key is required (set GEMINI_API_KEY)")
	case !strings.HasPrefix(cfg.APIBase, "https://"):
		return fail("API base must use HTTPS")
	case strings.TrimSpace(cfg.Model) == "":
		return fail("model is required")
	}
	return nil
}

// New creates a new Gemini provider from a validated config.
func New(cfg provider.Config, opts ...Option) (*Provider, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	pc := &providerConfig{}
	for _, opt := range opts {
		opt(pc)
	}
	if pc.httpClient == nil {
		pc.httpClient = provider.HTTPClient(cfg.Timeout())
	}

	return &Provider{
		client: newClient(cfg.APIKey.Reveal(), cfg.APIBase, cfg.MaxRetries, pc.httpClient),
		model:  cfg.Model,
	}, nil
}

// Type returns the provider identifier.
func (p *Provider) Type() provider.Type {
	return provider.TypeGemini
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	apiResp, err := p.client.generateContent(ctx, p.model, buildRequest(req))
	if err != nil {
		return nil, err
	}
	return convertResponse(apiResp), nil
}

// EstimateTokens implements provider.Provider.
func (p *Provider) EstimateTokens(req *provider.Request) int {
	return provider.EstimateTokens(req, true, provider.DefaultEstimatedOutputTokens)
}

// MaxContextLength implements provider.Provider.
func (p *Provider) MaxContextLength() int { return contextLength }

// SupportsStreaming implements provider.Provider.
func (p *Provider) SupportsStreaming() bool { return false }

// SupportsTools implements provider.Provider.
func (p *Provider) SupportsTools() bool { return true }

// buildRequest converts a provider.Request to a Gemini API request.
func buildRequest(req *provider.Request) *generateContentRequest {
	apiReq := &generateContentRequest{
		Contents: make([]content, 0, len(req.Messages)),
	}

	if req.SystemPrompt != "" {
		apiReq.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}

	if req.Temperature != nil || req.MaxTokens != nil {
		apiReq.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	for _, msg := range req.Messages {
		if msg.Content == "" {
			continue
		}
		role := convertRole(msg.Role)
		if n := len(apiReq.Contents); n > 0 && apiReq.Contents[n-1].Role == role {
			last := &apiReq.Contents[n-1]
			last.Parts = append(last.Parts, part{Text: msg.Content})
			continue
		}
		apiReq.Contents = append(apiReq.Contents, content{
			Role:  role,
			Parts: []part{{Text: msg.Content}},
		})
	}

	if len(req.Tools) > 0 {
		funcDecls := make([]functionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			funcDecls = append(funcDecls, functionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJSONSchema: t.InputSchema,
			})
		}
		apiReq.Tools = []tool{{FunctionDeclarations: funcDecls}}
	}

	return apiReq
}

// convertResponse converts a Gemini API response to a provider.Response.
// Gemini has no call IDs, so calls are numbered call_<n> in order.
func convertResponse(resp *generateContentResponse) *provider.Response {
	result := &provider.Response{StopReason: provider.StopError}

	if resp.UsageMetadata != nil {
		result.Usage = provider.NewUsage(resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 {
		return result
	}

	candidate := resp.Candidates[0]
	var texts []string
	if candidate.Content != nil {
		for _, pt := range candidate.Content.Parts {
			if pt.Text != "" {
				texts = append(texts, pt.Text)
			}
			if pt.FunctionCall != nil {
				args := pt.FunctionCall.Args
				if len(args) == 0 || string(args) == "null" {
					args = json.RawMessage(`{}`)
				}
				result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
					ID:    fmt.Sprintf("call_%d", len(result.ToolCalls)),
					Name:  pt.FunctionCall.Name,
					Input: args,
				})
			}
		}
	}
	result.Content = provider.JoinText(texts)
	result.StopReason = convertFinishReason(candidate.FinishReason, len(result.ToolCalls) > 0)

	return result
}

func convertRole(role provider.Role) string {
	if role == provider.RoleAssistant {
		return "model"
	}
	return "user"
}

func convertFinishReason(reason string, hasCalls bool) provider.StopReason {
	switch reason {
	case "STOP":
		if hasCalls {
			return provider.StopToolUse
		}
		return provider.StopEndTurn
	case "MAX_TOKENS":
		return provider.StopMaxTokens
	default:
		// SAFETY, RECITATION, OTHER, absent and unknown reasons
		return provider.StopError
	}
}

// Package anthropic provides the Claude adapter over the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/i2y/autofix/provider"
)

func init() {
	provider.Register(provider.TypeClaude, func(cfg provider.Config) (provider.Provider, error) {
		return New(cfg)
	}, Validate)
}

// Provider implements the Anthropic Messages API.
type Provider struct {
	client *client
	model  string
}

// Option configures the Anthropic provider.
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

// Validate checks cfg against the Claude rules without touching the network.
func Validate(cfg provider.Config) error {
	fail := func(msg string) error {
		return &provider.ConfigurationError{Provider: provider.TypeClaude, Message: msg}
	}
	switch {
	case cfg.Type != provider.TypeClaude:
		return fail("invalid provider type: " + cfg.Type.String())
	case cfg.APIKey.IsEmpty():
		return fail("API key is required (set ANTHROPIC_API_KEY)")
	case !strings.HasPrefix(cfg.APIBase, "https://"):
		return fail("API base must use HTTPS")
	case !strings.HasPrefix(cfg.Model, "claude-"):
		return fail("model must start with 'claude-'")
	}
	return nil
}

// New creates a new Anthropic provider from a validated config.
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
	return provider.TypeClaude
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	apiResp, err := p.client.messages(ctx, p.buildRequest(req))
	if err != nil {
		return nil, err
	}
	return convertResponse(apiResp), nil
}

// CompleteStream implements provider.StreamingProvider.
func (p *Provider) CompleteStream(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	stream, err := p.client.messagesStream(ctx, p.buildRequest(req))
	if err != nil {
		return nil, err
	}

	return &anthropicStream{
		reader:      stream,
		accumulated: &provider.Response{StopReason: provider.StopError},
	}, nil
}

// EstimateTokens implements provider.Provider.
func (p *Provider) EstimateTokens(req *provider.Request) int {
	return provider.EstimateTokens(req, true, provider.DefaultEstimatedOutputTokens)
}

// MaxContextLength implements provider.Provider.
func (p *Provider) MaxContextLength() int {
	for _, family := range []string{"sonnet", "haiku", "opus"} {
		if strings.Contains(p.model, family) {
			return 200000
		}
	}
	return 100000
}

// SupportsStreaming implements provider.Provider.
func (p *Provider) SupportsStreaming() bool { return true }

// SupportsTools implements provider.Provider.
func (p *Provider) SupportsTools() bool { return true }

// buildRequest converts a provider.Request to an Anthropic API request.
func (p *Provider) buildRequest(req *provider.Request) *messagesRequest {
	apiReq := &messagesRequest{
		Model:       p.model,
		System:      req.SystemPrompt,
		Messages:    make([]message, 0, len(req.Messages)),
		Temperature: req.Temperature,
	}

	if req.MaxTokens != nil {
		apiReq.MaxTokens = *req.MaxTokens
	}

	for _, msg := range req.Messages {
		if msg.Content == "" {
			continue
		}
		role := convertRole(msg.Role)

		// The API requires alternating roles, so adjacent same-role
		// messages are merged.
		if n := len(apiReq.Messages); n > 0 && apiReq.Messages[n-1].Role == role {
			last := &apiReq.Messages[n-1]
			last.Content = append(last.Content, contentPart{Type: "text", Text: msg.Content})
			continue
		}

		apiReq.Messages = append(apiReq.Messages, message{
			Role:    role,
			Content: []contentPart{{Type: "text", Text: msg.Content}},
		})
	}

	for _, tool := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, toolDef{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	return apiReq
}

// convertResponse converts an Anthropic API response to a provider.Response.
func convertResponse(resp *messagesResponse) *provider.Response {
	result := &provider.Response{
		StopReason: provider.StopError,
		Usage:      provider.NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}
	if resp.StopReason != nil {
		result.StopReason = convertStopReason(*resp.StopReason)
	}

	var texts []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			texts = append(texts, block.Text)
		case "tool_use":
			input := block.Input
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		}
	}
	result.Content = provider.JoinText(texts)

	return result
}

func convertRole(role provider.Role) string {
	if role == provider.RoleAssistant {
		return "assistant"
	}
	// Tool results travel as user text.
	return "user"
}

func convertStopReason(reason string) provider.StopReason {
	switch reason {
	case "end_turn":
		return provider.StopEndTurn
	case "max_tokens":
		return provider.StopMaxTokens
	case "stop_sequence":
		return provider.StopStopSequence
	case "tool_use":
		return provider.StopToolUse
	default:
		return provider.StopError
	}
}

// anthropicStream implements provider.ResponseStream for Anthropic.
type anthropicStream struct {
	reader      *streamReader
	accumulated *provider.Response
	err         error
	current     *provider.StreamChunk
	done        bool

	// Track current tool call for streaming
	currentToolID   string
	currentToolName string
	currentToolArgs string
}

func (s *anthropicStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	event, err := s.reader.ReadEvent()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			return false
		}
		s.err = err
		return false
	}

	s.current = &provider.StreamChunk{}

	switch event.Type {
	case "content_block_start":
		if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
			s.currentToolID = event.ContentBlock.ID
			s.currentToolName = event.ContentBlock.Name
			s.currentToolArgs = ""
		}

	case "content_block_delta":
		if event.Delta != nil {
			if event.Delta.Text != "" {
				s.current.Delta = event.Delta.Text
				s.accumulated.Content += event.Delta.Text
			}
			if event.Delta.PartialJSON != "" {
				s.currentToolArgs += event.Delta.PartialJSON
				s.current.ToolCallDelta = &provider.ToolCallDelta{
					ID:         s.currentToolID,
					Name:       s.currentToolName,
					InputDelta: event.Delta.PartialJSON,
				}
			}
		}

	case "content_block_stop":
		if s.currentToolID != "" {
			input := json.RawMessage(s.currentToolArgs)
			if s.currentToolArgs == "" {
				input = json.RawMessage(`{}`)
			}
			s.accumulated.ToolCalls = append(s.accumulated.ToolCalls, provider.ToolCall{
				ID:    s.currentToolID,
				Name:  s.currentToolName,
				Input: input,
			})
			s.currentToolID = ""
			s.currentToolName = ""
			s.currentToolArgs = ""
		}

	case "message_delta":
		if event.Delta != nil && event.Delta.StopReason != "" {
			s.current.StopReason = convertStopReason(event.Delta.StopReason)
			s.accumulated.StopReason = s.current.StopReason
		}
		if event.Usage != nil {
			s.accumulated.Usage = provider.NewUsage(s.accumulated.Usage.InputTokens, event.Usage.OutputTokens)
		}

	case "message_start":
		if event.Message != nil {
			s.accumulated.Usage = provider.NewUsage(event.Message.Usage.InputTokens, 0)
		}

	case "message_stop":
		s.done = true
		return false
	}

	return true
}

func (s *anthropicStream) Current() *provider.StreamChunk {
	return s.current
}

func (s *anthropicStream) Err() error {
	return s.err
}

func (s *anthropicStream) Close() error {
	return s.reader.Close()
}

func (s *anthropicStream) Accumulated() *provider.Response {
	return s.accumulated
}

// Package openai provides the OpenAI adapter over the Chat Completions API.
// Compatible local servers reuse it through NewCompatible.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/i2y/autofix/provider"
)

func init() {
	provider.Register(provider.TypeOpenAI, func(cfg provider.Config) (provider.Provider, error) {
		return New(cfg)
	}, Validate)
}

// Provider implements the OpenAI API.
type Provider struct {
	client *client
	typ    provider.Type
	model  string
}

// Option configures the OpenAI provider.
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

// Validate checks cfg against the OpenAI rules without touching the network.
func Validate(cfg provider.Config) error {
	fail := func(msg string) error {
		return &provider.ConfigurationError{Provider: provider.TypeOpenAI, Message: msg}
	}
	switch {
	case cfg.Type != provider.TypeOpenAI:
		return fail("invalid provider type: " + cfg.Type.String())
	case cfg.APIKey.IsEmpty():
		return fail("API key is required (set OPENAI_API_KEY)")
	case !strings.HasPrefix(cfg.APIBase, "http://") && !strings.HasPrefix(cfg.APIBase, "https://"):
		return fail("API base must be an http:// or https:// URL")
	case strings.TrimSpace(cfg.Model) == "":
		return fail("model is required")
	}
	return nil
}

// New creates a new OpenAI provider from a validated config.
func New(cfg provider.Config, opts ...Option) (*Provider, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return NewCompatible(provider.TypeOpenAI, cfg, opts...), nil
}

// NewCompatible creates a client for an OpenAI-compatible server. It skips
// cloud validation; callers apply their own rules first. typ is reported
// by Type and in errors.
func NewCompatible(typ provider.Type, cfg provider.Config, opts ...Option) *Provider {
	pc := &providerConfig{}
	for _, opt := range opts {
		opt(pc)
	}
	if pc.httpClient == nil {
		pc.httpClient = provider.HTTPClient(cfg.Timeout())
	}

	return &Provider{
		client: newClient(typ, cfg.APIKey.Reveal(), cfg.APIBase, cfg.MaxRetries, pc.httpClient),
		typ:    typ,
		model:  cfg.Model,
	}
}

// Type returns the provider identifier.
func (p *Provider) Type() provider.Type {
	return p.typ
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	apiResp, err := p.client.chatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return nil, err
	}
	return convertResponse(apiResp), nil
}

// CompleteStream implements provider.StreamingProvider.
func (p *Provider) CompleteStream(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	stream, err := p.client.chatCompletionStream(ctx, p.buildRequest(req))
	if err != nil {
		return nil, err
	}

	return &openaiStream{
		reader:      stream,
		accumulated: &provider.Response{StopReason: provider.StopError},
		toolCalls:   make(map[int]*pendingCall),
	}, nil
}

// EstimateTokens implements provider.Provider.
func (p *Provider) EstimateTokens(req *provider.Request) int {
	return provider.EstimateTokens(req, true, provider.DefaultEstimatedOutputTokens)
}

// MaxContextLength implements provider.Provider.
func (p *Provider) MaxContextLength() int {
	switch {
	case strings.Contains(p.model, "gpt-4o"), strings.Contains(p.model, "gpt-4-turbo"):
		return 128000
	case strings.Contains(p.model, "gpt-4"):
		return 8192
	case strings.Contains(p.model, "gpt-3.5-turbo"):
		return 16385
	default:
		return 8192
	}
}

// SupportsStreaming implements provider.Provider.
func (p *Provider) SupportsStreaming() bool { return true }

// SupportsTools implements provider.Provider.
func (p *Provider) SupportsTools() bool { return true }

// buildRequest converts a provider.Request to an OpenAI API request.
func (p *Provider) buildRequest(req *provider.Request) *chatCompletionRequest {
	apiReq := &chatCompletionRequest{
		Model:       p.model,
		Messages:    make([]message, 0, len(req.Messages)+1),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	if req.SystemPrompt != "" {
		apiReq.Messages = append(apiReq.Messages, message{Role: "system", Content: req.SystemPrompt})
	}

	for _, msg := range req.Messages {
		if msg.Content == "" {
			continue
		}
		role := string(msg.Role)
		// Flattened tool results carry no call ID, so they travel as user text.
		if msg.Role == provider.RoleTool {
			role = string(provider.RoleUser)
		}
		apiReq.Messages = append(apiReq.Messages, message{Role: role, Content: msg.Content})
	}

	for _, tool := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, toolDef{
			Type: "function",
			Function: functionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	return apiReq
}

// convertResponse converts an OpenAI API response to a provider.Response.
func convertResponse(resp *chatCompletionResponse) *provider.Response {
	result := &provider.Response{StopReason: provider.StopError}
	if resp.Usage != nil {
		result.Usage = provider.NewUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	if len(resp.Choices) == 0 {
		return result
	}

	choice := resp.Choices[0]
	result.Content = choice.Message.Content
	result.StopReason = convertFinishReason(choice.FinishReason)

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: parseArguments(tc.Function.Arguments),
		})
	}

	return result
}

// parseArguments turns the arguments string into tool input. Text that is
// not valid JSON is passed on as a JSON string so the tool rejects it as
// malformed input.
func parseArguments(args string) json.RawMessage {
	if strings.TrimSpace(args) == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(args)
	return quoted
}

// UsageFallback fills in usage when a compatible server omitted it: output
// tokens are estimated as len(content)/4.
func UsageFallback(resp *provider.Response) {
	if resp == nil || resp.Usage.TotalTokens > 0 {
		return
	}
	resp.Usage = provider.NewUsage(resp.Usage.InputTokens, len(resp.Content)/4)
}

// convertFinishReason converts an OpenAI finish reason to a provider.StopReason.
func convertFinishReason(reason string) provider.StopReason {
	switch reason {
	case "stop":
		return provider.StopEndTurn
	case "length":
		return provider.StopMaxTokens
	case "tool_calls", "function_call":
		return provider.StopToolUse
	default:
		// content_filter, absent and unknown reasons
		return provider.StopError
	}
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// openaiStream implements provider.ResponseStream for OpenAI.
type openaiStream struct {
	reader      *streamReader
	accumulated *provider.Response
	err         error
	current     *provider.StreamChunk
	done        bool
	toolCalls   map[int]*pendingCall // Track tool calls by index
}

func (s *openaiStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	chunk, err := s.reader.ReadChunk()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			s.finalizeToolCalls()
			return false
		}
		s.err = err
		return false
	}

	s.current = &provider.StreamChunk{}

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			s.current.Delta = delta.Content
			s.accumulated.Content += delta.Content
		}

		for _, tc := range delta.ToolCalls {
			call, exists := s.toolCalls[tc.Index]
			if !exists {
				call = &pendingCall{}
				s.toolCalls[tc.Index] = call
			}

			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				call.args.WriteString(tc.Function.Arguments)
				s.current.ToolCallDelta = &provider.ToolCallDelta{
					ID:         call.id,
					Name:       call.name,
					InputDelta: tc.Function.Arguments,
				}
			}
		}

		if choice.FinishReason != nil {
			s.current.StopReason = convertFinishReason(*choice.FinishReason)
			s.accumulated.StopReason = s.current.StopReason
		}
	}

	// Sent in the final chunk when stream_options.include_usage is set.
	if chunk.Usage != nil {
		s.accumulated.Usage = provider.NewUsage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
	}

	return true
}

func (s *openaiStream) finalizeToolCalls() {
	indices := make([]int, 0, len(s.toolCalls))
	for i := range s.toolCalls {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	for _, i := range indices {
		call := s.toolCalls[i]
		s.accumulated.ToolCalls = append(s.accumulated.ToolCalls, provider.ToolCall{
			ID:    call.id,
			Name:  call.name,
			Input: parseArguments(call.args.String()),
		})
	}
	s.toolCalls = map[int]*pendingCall{}
}

func (s *openaiStream) Current() *provider.StreamChunk {
	return s.current
}

func (s *openaiStream) Err() error {
	return s.err
}

func (s *openaiStream) Close() error {
	return s.reader.Close()
}

func (s *openaiStream) Accumulated() *provider.Response {
	return s.accumulated
}

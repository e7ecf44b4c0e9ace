// Package agent drives a bounded, multi-turn repair conversation: it gates
// each model call on the token budget, dispatches the tool calls the model
// makes, and decides when the session is over.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/i2y/autofix/provider"
	"github.com/i2y/autofix/ratelimit"
	"github.com/i2y/autofix/tool"
)

// Session defaults.
const (
	DefaultMaxIterations = 20
	DefaultMaxTokens     = 1024
	DefaultTemperature   = 0.7

	// placeholderChars is the estimation weight of a block dropped from the
	// flattened text.
	placeholderChars = 100
)

// Status is the terminal state of a session.
type Status int

const (
	StatusSuccess Status = iota
	StatusGaveUp
	StatusIterationLimitReached
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusGaveUp:
		return "gave_up"
	case StatusIterationLimitReached:
		return "iteration_limit_reached"
	default:
		return "unknown"
	}
}

// Outcome summarizes a finished session.
type Outcome struct {
	SessionID  string
	Status     Status
	Iterations int
	// Location is set when the model gave up and named a parseable
	// file and line.
	Location  *Location
	FinalText string
	Usage     provider.Usage
	History   []Turn
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimiter gates every model call on l.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(e *Engine) {
		if l != nil {
			e.limiter = l
		}
	}
}

// WithMaxIterations bounds the number of model calls.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithMaxTokens sets the per-response output limit.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		e.temperature = t
	}
}

// WithSystemPrompt sets the system prompt sent with every request.
func WithSystemPrompt(s string) Option {
	return func(e *Engine) {
		e.systemPrompt = s
	}
}

// WithWorkspace sets the root tools operate in.
func WithWorkspace(root string) Option {
	return func(e *Engine) {
		e.workspace = root
	}
}

// WithRepairFile names the file re-read and shown to the model after a
// failed test run.
func WithRepairFile(path string) Option {
	return func(e *Engine) {
		e.repairFile = path
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine runs repair sessions against one adapter. An Engine holds no
// per-session state and may run several sessions; they share its limiter.
type Engine struct {
	provider      provider.Provider
	tools         *tool.Registry
	limiter       *ratelimit.Limiter
	maxIterations int
	maxTokens     int
	temperature   float64
	systemPrompt  string
	workspace     string
	repairFile    string
	logger        *slog.Logger
}

// New creates an Engine. reg may be nil for a session without tools.
func New(p provider.Provider, reg *tool.Registry, opts ...Option) *Engine {
	if reg == nil {
		reg = tool.NewRegistry()
	}
	e := &Engine{
		provider:      p,
		tools:         reg,
		limiter:       ratelimit.New(0),
		maxIterations: DefaultMaxIterations,
		maxTokens:     DefaultMaxTokens,
		temperature:   DefaultTemperature,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// session is the mutable state of one Run.
type session struct {
	id      string
	logger  *slog.Logger
	history History
	pending []Block
	usage   provider.Usage
}

// Run drives a session seeded with initial until it succeeds, the model
// gives up, or the iteration limit is reached. Reaching the limit is not an
// error. Adapter failures, malformed tool input and context cancellation
// abort the session with a *SessionError.
func (e *Engine) Run(ctx context.Context, initial []Block) (*Outcome, error) {
	s := &session{
		id:      uuid.NewString(),
		pending: append([]Block(nil), initial...),
	}
	s.logger = e.logger.With("session", s.id, "provider", e.provider.Type())

	s.logger.Info("starting repair session",
		"max_iterations", e.maxIterations,
		"token_budget", e.limiter.Budget(),
		"tools", e.provider.SupportsTools() && e.tools.Len() > 0)

	for iter := 1; iter <= e.maxIterations; iter++ {
		resp, err := e.call(ctx, s, iter)
		if err != nil {
			return nil, s.abort(iter, err)
		}

		assistant := assistantBlocks(resp)

		if loc, gaveUp := ParseGiveUp(resp.Content); gaveUp {
			s.history.Append(NewTurn(s.pending, assistant))
			if loc == nil {
				s.logger.Warn("model gave up without a parseable location", "iteration", iter)
			} else {
				s.logger.Info("model gave up", "iteration", iter, "file", loc.File, "line", loc.Line)
			}
			return s.outcome(StatusGaveUp, iter, loc, resp.Content), nil
		}

		if len(resp.ToolCalls) == 0 {
			s.history.Append(NewTurn(s.pending, assistant))
			s.logger.Info("repair session finished", "iteration", iter, "stop_reason", resp.StopReason)
			return s.outcome(StatusSuccess, iter, nil, resp.Content), nil
		}

		results, failure, err := e.dispatch(ctx, s, resp.ToolCalls)
		if err != nil {
			return nil, s.abort(iter, err)
		}

		s.history.Append(NewTurn(s.pending, assistant))
		s.pending = results
		if failure != nil {
			s.pending = append(s.pending, e.refresh(s, failure)...)
		}
	}

	s.logger.Warn("maximum iterations reached", "max_iterations", e.maxIterations)
	return s.outcome(StatusIterationLimitReached, e.maxIterations, nil, ""), nil
}

// call performs one gated round trip and records its usage.
func (e *Engine) call(ctx context.Context, s *session, iter int) (*provider.Response, error) {
	messages, dropped := flatten(&s.history, s.pending)
	maxTokens := e.maxTokens
	temperature := e.temperature
	req := &provider.Request{
		SystemPrompt: e.systemPrompt,
		Messages:     messages,
		MaxTokens:    &maxTokens,
		Temperature:  &temperature,
	}
	if e.provider.SupportsTools() {
		req.Tools = e.tools.Definitions()
	}

	estimated := e.provider.EstimateTokens(req) + dropped*placeholderChars/4
	stats := e.limiter.Stats()
	s.logger.Debug("calling model",
		"iteration", iter,
		"messages", len(messages),
		"estimated_tokens", estimated,
		"budget_used", stats.Used,
		"budget_remaining", stats.Remaining)

	if waited, err := e.limiter.Wait(ctx, estimated); err != nil {
		return nil, fmt.Errorf("waiting for token budget: %w", err)
	} else if waited > 0 {
		s.logger.Info("token budget window reset, continuing", "waited", waited)
	}

	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	used := resp.Usage.TotalTokens
	if used == 0 {
		used = resp.Usage.InputTokens + resp.Usage.OutputTokens
	}
	e.limiter.RecordUsage(used)
	s.usage = s.usage.Add(resp.Usage)

	s.logger.Debug("model responded",
		"iteration", iter,
		"stop_reason", resp.StopReason,
		"tool_calls", len(resp.ToolCalls),
		"estimated_tokens", estimated,
		"actual_tokens", used)
	if resp.Content != "" {
		s.logger.Info("model says", "iteration", iter, "text", resp.Content)
	}
	return resp, nil
}

// dispatch runs every call in order. It returns the tool result blocks and
// the last test failure among them, if any.
func (e *Engine) dispatch(ctx context.Context, s *session, calls []provider.ToolCall) ([]Block, tool.TestFailure, error) {
	results := make([]Block, 0, len(calls))
	var failure tool.TestFailure

	for _, call := range calls {
		s.logger.Info("tool call", "tool", call.Name, "id", call.ID)
		s.logger.Debug("tool input", "tool", call.Name, "input", string(call.Input))

		res, err := e.tools.Dispatch(ctx, call, e.workspace)
		if err != nil {
			var inputErr *tool.InputError
			if errors.As(err, &inputErr) {
				return nil, nil, fmt.Errorf("invalid tool input: %w", err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			// The tool itself broke; the model can still try something else.
			s.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
			res = tool.Fail(err.Error(), map[string]string{"error": err.Error()})
		}

		s.logger.Info("tool result", "tool", call.Name, "success", res.Success, "message", res.Message)
		if f, ok := res.Failure(); ok {
			failure = f
		}
		results = append(results, ToolResult(call.ID, call.Name, res.JSON()))
	}
	return results, failure, nil
}

// refresh builds the context appended after a failed test run: the current
// contents of the file under repair and the latest failure artifact.
func (e *Engine) refresh(s *session, failure tool.TestFailure) []Block {
	artifact := failure.FailureArtifact()
	var sb strings.Builder
	sb.WriteString("UPDATED CONTEXT after test failure:\n\n")

	if e.repairFile != "" {
		data, err := os.ReadFile(e.repairFile)
		if err != nil {
			s.logger.Warn("could not re-read file under repair", "file", e.repairFile, "error", err)
		} else {
			fmt.Fprintf(&sb, "The file %s may have been modified. Here's the current content:\n\n```swift\n%s\n```\n\n",
				e.repairFile, strings.TrimRight(string(data), "\n"))
		}
	}
	if artifact != "" {
		fmt.Fprintf(&sb, "Diagnostics from the failed run are attached: %s", artifact)
	}

	s.logger.Info("providing updated context after test failure", "file", e.repairFile, "artifact", artifact)

	blocks := []Block{Text(strings.TrimRight(sb.String(), "\n"))}
	if artifact != "" {
		blocks = append(blocks, Attachment(artifact))
	}
	return blocks
}

func (s *session) abort(iter int, cause error) *SessionError {
	return &SessionError{SessionID: s.id, Iteration: iter, Usage: s.usage, Cause: cause}
}

func (s *session) outcome(status Status, iterations int, loc *Location, text string) *Outcome {
	return &Outcome{
		SessionID:  s.id,
		Status:     status,
		Iterations: iterations,
		Location:   loc,
		FinalText:  text,
		Usage:      s.usage,
		History:    s.history.Turns(),
	}
}

func assistantBlocks(resp *provider.Response) []Block {
	blocks := make([]Block, 0, 1+len(resp.ToolCalls))
	if resp.Content != "" {
		blocks = append(blocks, Text(resp.Content))
	}
	for _, c := range resp.ToolCalls {
		blocks = append(blocks, ToolCallBlock(c.ID, c.Name, string(c.Input)))
	}
	return blocks
}

// flatten renders history and pending content as adapter messages. Each
// turn becomes one user and one assistant message of newline-joined text;
// empty sides are omitted. It also returns how many blocks were dropped.
func flatten(h *History, pending []Block) ([]provider.Message, int) {
	var (
		messages []provider.Message
		dropped  int
	)
	add := func(role provider.Role, blocks []Block) {
		var parts []string
		for _, b := range blocks {
			if !b.textual(role == provider.RoleAssistant) {
				dropped++
				continue
			}
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		if len(parts) > 0 {
			messages = append(messages, provider.Message{Role: role, Content: strings.Join(parts, "\n")})
		}
	}

	for _, t := range h.turns {
		add(provider.RoleUser, t.user)
		add(provider.RoleAssistant, t.assistant)
	}
	add(provider.RoleUser, pending)
	return messages, dropped
}

// Package provider defines the vendor-neutral adapter contract for LLM backends.
package provider

import "context"

// Provider is the core abstraction for LLM providers.
// All adapter implementations must satisfy this interface.
type Provider interface {
	// Type returns the backend this adapter talks to.
	Type() Type

	// Complete performs exactly one network round trip.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// EstimateTokens approximates the token cost of req for the pre-call
	// rate gate. It is not billing-accurate.
	EstimateTokens(req *Request) int

	// MaxContextLength returns the context window of the configured model.
	MaxContextLength() int

	// SupportsStreaming reports whether CompleteStream can be used.
	SupportsStreaming() bool

	// SupportsTools reports whether tool definitions are honored.
	SupportsTools() bool
}

// StreamingProvider extends Provider with streaming capability.
type StreamingProvider interface {
	Provider

	// CompleteStream executes a streaming request.
	CompleteStream(ctx context.Context, req *Request) (ResponseStream, error)
}

// ResponseStream represents a streaming response.
type ResponseStream interface {
	// Next advances to the next chunk, returns false when done.
	Next() bool

	// Current returns the current chunk.
	Current() *StreamChunk

	// Err returns any error that occurred during streaming.
	Err() error

	// Close releases stream resources.
	Close() error

	// Accumulated returns the full response accumulated so far.
	Accumulated() *Response
}

// StreamChunk represents a single streaming chunk.
type StreamChunk struct {
	Delta         string
	ToolCallDelta *ToolCallDelta
	StopReason    StopReason
}

// ToolCallDelta represents incremental tool call data in streaming.
type ToolCallDelta struct {
	ID         string
	Name       string
	InputDelta string
}

// Stream starts a streaming request after checking the capability.
// It returns ErrStreamingNotSupported when p cannot stream.
func Stream(ctx context.Context, p Provider, req *Request) (ResponseStream, error) {
	sp, ok := p.(StreamingProvider)
	if !ok || !p.SupportsStreaming() {
		return nil, ErrStreamingNotSupported
	}
	streamReq := *req
	streamReq.Stream = true
	return sp.CompleteStream(ctx, &streamReq)
}

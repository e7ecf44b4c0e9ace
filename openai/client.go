package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/i2y/autofix/provider"
)

// client wraps the HTTP client for OpenAI-compatible API calls. typ is the
// backend reported in errors, which differs for compatible servers.
type client struct {
	typ        provider.Type
	apiKey     string
	baseURL    string
	maxRetries int
	httpClient *http.Client
}

// newClient creates a new OpenAI client.
func newClient(typ provider.Type, apiKey, baseURL string, maxRetries int, httpClient *http.Client) *client {
	return &client{
		typ:        typ,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: maxRetries,
		httpClient: httpClient,
	}
}

// chatCompletion sends a chat completion request.
func (c *client) chatCompletion(ctx context.Context, req *chatCompletionRequest) (*chatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &provider.InvalidRequestError{Provider: c.typ, Message: fmt.Sprintf("marshaling request: %v", err)}
	}

	respBody, err := provider.Retry(ctx, c.maxRetries, func() ([]byte, error) {
		httpResp, err := c.do(ctx, body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = httpResp.Body.Close() }()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, provider.NewNetworkError(c.typ, fmt.Errorf("reading response: %w", err), c.apiKey)
		}
		if httpResp.StatusCode != http.StatusOK {
			return nil, c.parseError(httpResp.StatusCode, respBody)
		}
		return respBody, nil
	})
	if err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &provider.ServerError{
			Provider:   c.typ,
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("parsing response: %v", err),
		}
	}

	return &resp, nil
}

// chatCompletionStream sends a streaming chat completion request.
func (c *client) chatCompletionStream(ctx context.Context, req *chatCompletionRequest) (*streamReader, error) {
	// Create a copy with stream enabled
	streamReq := *req
	streamReq.Stream = true
	streamReq.StreamOptions = &streamOptions{IncludeUsage: true}

	body, err := json.Marshal(streamReq)
	if err != nil {
		return nil, &provider.InvalidRequestError{Provider: c.typ, Message: fmt.Sprintf("marshaling request: %v", err)}
	}

	httpResp, err := c.do(ctx, body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, c.parseError(httpResp.StatusCode, respBody)
	}

	return &streamReader{
		reader: bufio.NewReader(httpResp.Body),
		closer: httpResp.Body,
	}, nil
}

func (c *client) do(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &provider.InvalidRequestError{
			Provider: c.typ,
			Message:  provider.Redact(fmt.Sprintf("creating request: %v", err), c.apiKey),
		}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.NewNetworkError(c.typ, err, c.apiKey)
	}
	return httpResp, nil
}

// parseError parses an error response from the API.
func (c *client) parseError(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return provider.StatusError(c.typ, statusCode, string(body), c.apiKey)
	}

	msg := errResp.Error.Message
	if errResp.Error.Type != "" {
		msg = errResp.Error.Type + ": " + msg
	}
	return provider.StatusError(c.typ, statusCode, msg, c.apiKey)
}

// streamReader reads SSE events from an OpenAI stream.
type streamReader struct {
	reader *bufio.Reader
	closer io.Closer
}

// ReadChunk reads the next chunk from the stream.
// Returns nil, io.EOF when the stream is done.
func (s *streamReader) ReadChunk() (*streamChunk, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimPrefix(line, "data:")
		data = strings.TrimSpace(data)

		if data == "[DONE]" {
			return nil, io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("parsing chunk: %w", err)
		}

		return &chunk, nil
	}
}

// Close closes the stream.
func (s *streamReader) Close() error {
	return s.closer.Close()
}

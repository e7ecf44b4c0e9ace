package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/i2y/autofix/provider"
)

const apiVersion = "v1beta"

// client wraps the HTTP client for Gemini API calls.
type client struct {
	apiKey     string
	baseURL    string
	maxRetries int
	httpClient *http.Client
}

// newClient creates a new Gemini client.
func newClient(apiKey, baseURL string, maxRetries int, httpClient *http.Client) *client {
	return &client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: maxRetries,
		httpClient: httpClient,
	}
}

// generateContent sends a generateContent request.
func (c *client) generateContent(ctx context.Context, model string, req *generateContentRequest) (*generateContentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &provider.InvalidRequestError{Provider: provider.TypeGemini, Message: fmt.Sprintf("marshaling request: %v", err)}
	}

	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, apiVersion, url.PathEscape(model))
	respBody, err := provider.Retry(ctx, c.maxRetries, func() ([]byte, error) {
		return c.post(ctx, endpoint, body)
	})
	if err != nil {
		return nil, err
	}

	var resp generateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &provider.ServerError{
			Provider:   provider.TypeGemini,
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("parsing response: %v", err),
		}
	}

	return &resp, nil
}

func (c *client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &provider.InvalidRequestError{
			Provider: provider.TypeGemini,
			Message:  provider.Redact(fmt.Sprintf("creating request: %v", err), c.apiKey),
		}
	}

	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.NewNetworkError(provider.TypeGemini, err, c.apiKey)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, provider.NewNetworkError(provider.TypeGemini, fmt.Errorf("reading response: %w", err), c.apiKey)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.parseError(httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
}

func (c *client) parseError(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return provider.StatusError(provider.TypeGemini, statusCode, string(body), c.apiKey)
	}

	msg := errResp.Error.Message
	if errResp.Error.Status != "" {
		msg = errResp.Error.Status + ": " + msg
	}
	return provider.StatusError(provider.TypeGemini, statusCode, msg, c.apiKey)
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingNotSupported is returned when a streaming entry point is used
// on an adapter that cannot stream.
var ErrStreamingNotSupported = errors.New("streaming not supported by this provider")

// ConfigurationError is fatal and always raised before any network use.
type ConfigurationError struct {
	Provider Type
	Message  string
}

func (e *ConfigurationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s configuration error: %s", e.Provider, e.Message)
	}
	return "configuration error: " + e.Message
}

// AuthenticationError indicates the vendor rejected the credential.
type AuthenticationError struct {
	Provider Type
	Message  string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Provider, e.Message)
}

// NetworkError wraps a transport failure. Message is redacted; the
// original error is not retained since its text may embed the credential.
// Cause is only set for context cancellation and deadline errors.
type NetworkError struct {
	Provider Type
	Message  string
	Cause    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s network error: %s", e.Provider, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// NewNetworkError redacts err's text before wrapping it.
func NewNetworkError(p Type, err error, secrets ...string) *NetworkError {
	ne := &NetworkError{
		Provider: p,
		Message:  Redact(err.Error(), secrets...),
	}
	switch {
	case errors.Is(err, context.Canceled):
		ne.Cause = context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		ne.Cause = context.DeadlineExceeded
	}
	return ne
}

// ServerError is a non-success status from the vendor.
type ServerError struct {
	Provider   Type
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s server error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// InvalidRequestError signals a malformed message or tool schema.
type InvalidRequestError struct {
	Provider Type
	Message  string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s invalid request: %s", e.Provider, e.Message)
}

// RateLimitError is a vendor-side 429. The client-side limiter should make
// it rare; the engine treats it as fatal.
type RateLimitError struct {
	Provider Type
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded: %s", e.Provider, e.Message)
}

// StatusError classifies a non-2xx HTTP response.
func StatusError(p Type, status int, message string, secrets ...string) error {
	message = Redact(message, secrets...)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthenticationError{Provider: p, Message: message}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Provider: p, Message: message}
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnprocessableEntity:
		return &InvalidRequestError{Provider: p, Message: fmt.Sprintf("status %d: %s", status, message)}
	default:
		return &ServerError{Provider: p, StatusCode: status, Message: message}
	}
}

// IsFatal reports whether err should abort a repair session. Every adapter
// error is fatal; the helper exists so callers can tell adapter failures
// apart from context cancellation.
func IsFatal(err error) bool {
	var (
		cfgErr  *ConfigurationError
		authErr *AuthenticationError
		netErr  *NetworkError
		srvErr  *ServerError
		reqErr  *InvalidRequestError
		rlErr   *RateLimitError
	)
	return errors.As(err, &cfgErr) || errors.As(err, &authErr) ||
		errors.As(err, &netErr) || errors.As(err, &srvErr) ||
		errors.As(err, &reqErr) || errors.As(err, &rlErr) ||
		errors.Is(err, ErrStreamingNotSupported)
}

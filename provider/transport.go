package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
	retryBaseDelay         = 500 * time.Millisecond
	retryMaxDelay          = 8 * time.Second
)

// HTTPClient returns a pooled client with the given overall timeout.
func HTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Retry calls fn until it succeeds, returns a non-network error, or
// maxRetries re-attempts are spent. Only *NetworkError is retried: a
// response with an HTTP status is never re-sent.
func Retry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	delay := retryBaseDelay
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}

		var netErr *NetworkError
		if !errors.As(err, &netErr) || attempt >= maxRetries || ctx.Err() != nil {
			return v, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return v, err
		case <-timer.C:
		}
		delay = min(delay*2, retryMaxDelay)
	}
}

// JoinText newline-joins the non-empty text blocks of a response.
func JoinText(blocks []string) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, "\n")
}

// Package ratelimit implements a client-side token budget over a trailing
// window. Callers estimate a request, gate on Check or Wait, and record the
// usage the vendor actually reported once the call completes.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/i2y/autofix/provider"
)

// DefaultWindow is the trailing window a budget applies to.
const DefaultWindow = 60 * time.Second

// Clock abstracts time so window expiry can be tested deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// WithWindow overrides the trailing window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithLogger sets the logger used to report waits.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

type entry struct {
	at     time.Time
	tokens int
}

// Limiter is a trailing-window token budget. A zero budget disables it.
// It is safe for concurrent use.
type Limiter struct {
	budget int
	window time.Duration
	clock  Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries []entry // ordered by at, oldest first
}

// Stats is a snapshot of the ledger.
type Stats struct {
	Used            int
	Remaining       int
	UntilNextExpiry time.Duration
}

// New creates a limiter allowing tokensPerMinute tokens per window.
// tokensPerMinute <= 0 disables limiting.
func New(tokensPerMinute int, opts ...Option) *Limiter {
	l := &Limiter{
		budget: max(tokensPerMinute, 0),
		window: DefaultWindow,
		clock:  systemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromConfig builds a limiter from the provider's rate_limit_tpm setting.
func FromConfig(cfg provider.Config, opts ...Option) *Limiter {
	return New(cfg.TokensPerMinute(), opts...)
}

// Enabled reports whether a budget is enforced.
func (l *Limiter) Enabled() bool {
	return l.budget > 0
}

// Budget returns the configured tokens per window.
func (l *Limiter) Budget() int {
	return l.budget
}

// Check reports whether estimated more tokens fit in the budget now. When
// they do not, it returns the shortest wait after which they will, assuming
// no usage is recorded in between. If the request can never fit the wait
// is the full window.
func (l *Limiter) Check(estimated int) (time.Duration, bool) {
	if !l.Enabled() {
		return 0, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.purge(now)

	used := l.used()
	if used+estimated <= l.budget {
		return 0, true
	}

	expired := 0
	for _, e := range l.entries {
		expired += e.tokens
		if used-expired+estimated <= l.budget {
			return e.at.Add(l.window).Sub(now), false
		}
	}
	return l.window, false
}

// Wait blocks until estimated tokens fit, or ctx is done. It returns how
// long it waited. The wait is a single timer; the budget is not re-checked
// once it fires.
func (l *Limiter) Wait(ctx context.Context, estimated int) (time.Duration, error) {
	wait, ok := l.Check(estimated)
	if ok {
		return 0, nil
	}

	l.logger.Info("rate limit reached, waiting",
		"wait", wait,
		"estimated_tokens", estimated,
		"budget", l.budget)

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.clock.After(wait):
		return wait, nil
	}
}

// RecordUsage appends the tokens a completed call actually consumed.
func (l *Limiter) RecordUsage(tokens int) {
	if !l.Enabled() || tokens <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	// Keep timestamps non-decreasing even if the clock steps backwards.
	if n := len(l.entries); n > 0 && now.Before(l.entries[n-1].at) {
		now = l.entries[n-1].at
	}
	l.entries = append(l.entries, entry{at: now, tokens: tokens})
	l.purge(now)

	l.logger.Debug("recorded token usage", "tokens", tokens, "used", l.used(), "budget", l.budget)
}

// Stats returns a snapshot of the ledger. A disabled limiter reports zero
// usage.
func (l *Limiter) Stats() Stats {
	if !l.Enabled() {
		return Stats{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.purge(now)

	used := l.used()
	s := Stats{
		Used:      used,
		Remaining: max(l.budget-used, 0),
	}
	if len(l.entries) > 0 {
		s.UntilNextExpiry = l.entries[0].at.Add(l.window).Sub(now)
	}
	return s
}

// purge drops entries whose age has reached the window. Callers hold mu.
func (l *Limiter) purge(now time.Time) {
	i := 0
	for i < len(l.entries) && now.Sub(l.entries[i].at) >= l.window {
		i++
	}
	if i > 0 {
		l.entries = append(l.entries[:0], l.entries[i:]...)
	}
}

func (l *Limiter) used() int {
	total := 0
	for _, e := range l.entries {
		total += e.tokens
	}
	return total
}

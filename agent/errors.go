package agent

import (
	"fmt"

	"github.com/i2y/autofix/provider"
)

// SessionError aborts a repair session. Cause is the adapter error, a
// malformed tool input, or a context error. Usage covers the calls that
// completed before the abort.
type SessionError struct {
	SessionID string
	Iteration int
	Usage     provider.Usage
	Cause     error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: iteration %d: %v", e.SessionID, e.Iteration, e.Cause)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

package tool

import "fmt"

// InputError is returned when a tool call's input does not match the
// tool's declared shape. It aborts a repair session.
type InputError struct {
	Tool  string
	Cause error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("tool %q: malformed input: %v", e.Tool, e.Cause)
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// ExecutionError is a transport-level failure of the tool itself, such as
// a process that could not be started. It is distinct from a tool that ran
// and reported failure in its Result.
type ExecutionError struct {
	Tool  string
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Tool, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

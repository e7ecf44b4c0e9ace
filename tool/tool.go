// Package tool defines the executor contract between the conversation
// engine and workspace tools, and a name-keyed registry for dispatch.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/i2y/autofix/schema"
)

// Tool is an executable capability the model can call by name.
type Tool interface {
	// Name returns the tool's name as seen by the model.
	Name() string

	// Description returns the tool's description for the model.
	Description() string

	// Schema returns the JSON Schema object for the tool's input.
	Schema() json.RawMessage

	// Execute runs the tool against the workspace. A returned error is
	// either an *InputError or an *ExecutionError; domain failures are
	// reported through Result.Success.
	Execute(ctx context.Context, input json.RawMessage, workspaceRoot string) (Result, error)
}

// Result is what a tool reports back to the model.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// Ok builds a successful result.
func Ok(message string, payload any) Result {
	return Result{Success: true, Message: message, Payload: payload}
}

// Fail builds a failed result.
func Fail(message string, payload any) Result {
	return Result{Success: false, Message: message, Payload: payload}
}

// JSON renders the result as the text fed back to the model.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		// Payload was not serializable; keep the outcome.
		data, _ = json.Marshal(Result{Success: r.Success, Message: r.Message})
	}
	return string(data)
}

// TestFailure is implemented by payloads of test-execution tools that ran
// a failing build or test. FailureArtifact is a path to the diagnostics it
// produced.
type TestFailure interface {
	FailureArtifact() string
}

// Failure returns the payload as a TestFailure when the result is a
// failed test run.
func (r Result) Failure() (TestFailure, bool) {
	if r.Success {
		return nil, false
	}
	f, ok := r.Payload.(TestFailure)
	return f, ok
}

// Validator is implemented by input types with rules beyond their JSON
// shape. A validation error is reported as an *InputError.
type Validator interface {
	Validate() error
}

// TypedTool provides type-safe tool creation with an auto-generated schema.
// In is the input type.
type TypedTool[In any] struct {
	name        string
	description string
	fn          func(ctx context.Context, in In, workspaceRoot string) (Result, error)
	schema      json.RawMessage
}

// NewTool creates a type-safe tool from a function.
// The input type In is used to generate the JSON schema automatically.
//
// Example:
//
//	type ReadInput struct {
//	    Path string `json:"path" jsonschema:"description=File to read"`
//	}
//
//	readTool, err := tool.NewTool("read_file", "Read a workspace file",
//	    func(ctx context.Context, in ReadInput, root string) (tool.Result, error) {
//	        data, err := os.ReadFile(filepath.Join(root, in.Path))
//	        if err != nil {
//	            return tool.Fail(err.Error(), nil), nil
//	        }
//	        return tool.Ok("read", string(data)), nil
//	    },
//	)
func NewTool[In any](
	name, description string,
	fn func(ctx context.Context, in In, workspaceRoot string) (Result, error),
) (*TypedTool[In], error) {
	paramSchema, err := schema.ForTool[In]()
	if err != nil {
		return nil, fmt.Errorf("generating schema for %s: %w", name, err)
	}

	return &TypedTool[In]{
		name:        name,
		description: description,
		fn:          fn,
		schema:      paramSchema,
	}, nil
}

// MustNewTool is like NewTool but panics on error.
// Useful for package-level tool definitions.
func MustNewTool[In any](
	name, description string,
	fn func(ctx context.Context, in In, workspaceRoot string) (Result, error),
) *TypedTool[In] {
	t, err := NewTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the tool's name.
func (t *TypedTool[In]) Name() string {
	return t.name
}

// Description returns the tool's description.
func (t *TypedTool[In]) Description() string {
	return t.description
}

// Schema returns the JSON schema for the tool's input.
func (t *TypedTool[In]) Schema() json.RawMessage {
	return t.schema
}

// Execute decodes input into In and runs the tool.
// Implements the Tool interface.
func (t *TypedTool[In]) Execute(ctx context.Context, input json.RawMessage, workspaceRoot string) (Result, error) {
	var in In
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, &InputError{Tool: t.name, Cause: err}
	}
	if v, ok := any(&in).(Validator); ok {
		if err := v.Validate(); err != nil {
			return Result{}, &InputError{Tool: t.name, Cause: err}
		}
	}

	res, err := t.fn(ctx, in, workspaceRoot)
	if err != nil {
		var inputErr *InputError
		var execErr *ExecutionError
		if errors.As(err, &inputErr) || errors.As(err, &execErr) {
			return res, err
		}
		return res, &ExecutionError{Tool: t.name, Cause: err}
	}
	return res, nil
}

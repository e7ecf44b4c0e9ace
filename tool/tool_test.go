package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/autofix/provider"
)

// Test input types
type echoInput struct {
	Name  string `json:"name" jsonschema:"description=The name"`
	Count int    `json:"count,omitempty"`
}

type strictInput struct {
	Mode string `json:"mode" jsonschema:"enum=fast,enum=slow"`
}

func (in strictInput) Validate() error {
	if in.Mode != "fast" && in.Mode != "slow" {
		return errors.New("mode must be fast or slow")
	}
	return nil
}

type failure struct{ path string }

func (f failure) FailureArtifact() string { return f.path }

func newEcho(t *testing.T) *TypedTool[echoInput] {
	t.Helper()
	tl, err := NewTool("echo", "Echo the input",
		func(ctx context.Context, in echoInput, root string) (Result, error) {
			return Ok(in.Name, map[string]any{"count": in.Count, "root": root}), nil
		})
	require.NoError(t, err)
	return tl
}

func TestNewTool(t *testing.T) {
	tl := newEcho(t)
	assert.Equal(t, "echo", tl.Name())
	assert.Equal(t, "Echo the input", tl.Description())

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(tl.Schema(), &parsed))
	assert.Equal(t, "object", parsed["type"])
	assert.Contains(t, parsed["properties"], "name")
}

func TestTypedTool_Execute(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantInput bool
		check     func(t *testing.T, res Result)
	}{
		{
			name:  "valid input",
			input: `{"name": "test", "count": 42}`,
			check: func(t *testing.T, res Result) {
				assert.True(t, res.Success)
				assert.Equal(t, "test", res.Message)
				assert.Equal(t, map[string]any{"count": 42, "root": "/ws"}, res.Payload)
			},
		},
		{
			name:  "empty input",
			input: ``,
			check: func(t *testing.T, res Result) {
				assert.True(t, res.Success)
				assert.Equal(t, "", res.Message)
			},
		},
		{name: "invalid JSON", input: `not valid json`, wantInput: true},
		{name: "string instead of object", input: `"{\"name\":1}"`, wantInput: true},
		{name: "wrong field type", input: `{"name": 5}`, wantInput: true},
	}

	tl := newEcho(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tl.Execute(context.Background(), json.RawMessage(tt.input), "/ws")
			if tt.wantInput {
				var inputErr *InputError
				require.ErrorAs(t, err, &inputErr)
				assert.Equal(t, "echo", inputErr.Tool)
				return
			}
			require.NoError(t, err)
			tt.check(t, res)
		})
	}
}

func TestTypedTool_Validator(t *testing.T) {
	tl := MustNewTool("strict", "", func(ctx context.Context, in strictInput, root string) (Result, error) {
		return Ok(in.Mode, nil), nil
	})

	_, err := tl.Execute(context.Background(), json.RawMessage(`{"mode":"fast"}`), "")
	assert.NoError(t, err)

	_, err = tl.Execute(context.Background(), json.RawMessage(`{"mode":"warp"}`), "")
	var inputErr *InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestTypedTool_ErrorsAreExecutionErrors(t *testing.T) {
	cause := errors.New("exec: not found")
	tl := MustNewTool("boom", "", func(ctx context.Context, in echoInput, root string) (Result, error) {
		return Result{}, cause
	})

	_, err := tl.Execute(context.Background(), json.RawMessage(`{}`), "")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", execErr.Tool)
}

func TestResult(t *testing.T) {
	ok := Ok("done", nil)
	assert.JSONEq(t, `{"success":true,"message":"done"}`, ok.JSON())
	_, isFailure := ok.Failure()
	assert.False(t, isFailure)

	failed := Fail("test failed", failure{path: "/tmp/r.xcresult"})
	f, isFailure := failed.Failure()
	require.True(t, isFailure)
	assert.Equal(t, "/tmp/r.xcresult", f.FailureArtifact())

	_, isFailure = Fail("no payload", nil).Failure()
	assert.False(t, isFailure)

	bad := Fail("unserializable", func() {})
	assert.JSONEq(t, `{"success":false,"message":"unserializable"}`, bad.JSON())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(
		MustNewTool("zeta", "z", func(context.Context, echoInput, string) (Result, error) { return Ok("z", nil), nil }),
		newEcho(t),
	)

	assert.Equal(t, 2, reg.Len())
	_, ok := reg.Get("echo")
	assert.True(t, ok)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "echo", all[0].Name())
	assert.Equal(t, "zeta", all[1].Name())

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "Echo the input", defs[0].Description)
	assert.True(t, json.Valid(defs[0].InputSchema))
}

func TestRegistry_Dispatch(t *testing.T) {
	reg := NewRegistry(newEcho(t))
	ctx := context.Background()

	res, err := reg.Dispatch(ctx, provider.ToolCall{ID: "1", Name: "echo", Input: json.RawMessage(`{"name":"hi"}`)}, "/ws")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = reg.Dispatch(ctx, provider.ToolCall{ID: "2", Name: "missing"}, "/ws")
	require.NoError(t, err, "unknown tools are a soft failure")
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown tool: missing", res.Message)
	assert.JSONEq(t, `{"success":false,"message":"Unknown tool: missing","payload":{"error":"Unknown tool: missing"}}`, res.JSON())

	_, err = reg.Dispatch(ctx, provider.ToolCall{ID: "3", Name: "echo", Input: json.RawMessage(`[]`)}, "/ws")
	var inputErr *InputError
	assert.ErrorAs(t, err, &inputErr)
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/autofix/tool"
)

func TestProcessToolResult(t *testing.T) {
	tests := []struct {
		name     string
		content  []mcp.Content
		expected string
	}{
		{
			name:     "empty content",
			content:  []mcp.Content{},
			expected: "",
		},
		{
			name: "multiple text contents joined with newline",
			content: []mcp.Content{
				&mcp.TextContent{Text: "Line 1"},
				&mcp.TextContent{Text: "Line 2"},
			},
			expected: "Line 1\nLine 2",
		},
		{
			name: "image content",
			content: []mcp.Content{
				&mcp.ImageContent{MIMEType: "image/png", Data: []byte("0123456789")},
			},
			expected: "[Image: image/png, 10 bytes]",
		},
		{
			name: "mixed content types",
			content: []mcp.Content{
				&mcp.TextContent{Text: "Screenshot:"},
				&mcp.EmbeddedResource{Resource: &mcp.ResourceContents{URI: "file:///tmp/shot.png"}},
				&mcp.EmbeddedResource{},
			},
			expected: "Screenshot:\n[Resource: file:///tmp/shot.png]\n[Resource: embedded]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, processToolResult(tt.content))
		})
	}
}

// fakeSession is a scripted MCP session.
type fakeSession struct {
	tools  []*mcp.Tool
	result *mcp.CallToolResult
	err    error
	calls  []*mcp.CallToolParams
	closed bool
}

func (f *fakeSession) ListTools(context.Context, *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSession) CallTool(_ context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	f.calls = append(f.calls, params)
	return f.result, f.err
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func newFake(sess *fakeSession) *Client {
	return newClient(sess, newConfig([]Option{WithName("sim")}))
}

func TestClient_Tools(t *testing.T) {
	sess := &fakeSession{tools: []*mcp.Tool{
		{
			Name:        "screenshot",
			Description: "Capture the simulator screen",
			InputSchema: map[string]any{
				"$schema":    "https://json-schema.org/draft/2020-12/schema",
				"type":       "object",
				"properties": map[string]any{"udid": map[string]any{"type": "string"}},
			},
		},
		{Name: "boot", Description: "Boot the simulator"},
	}}
	client := newFake(sess)

	tools, err := client.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)

	assert.Equal(t, "screenshot", tools[0].Name())
	assert.Equal(t, "Capture the simulator screen", tools[0].Description())

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(tools[0].Schema(), &parsed))
	assert.NotContains(t, parsed, "$schema")
	assert.Contains(t, parsed["properties"], "udid")

	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(tools[1].Schema()))

	require.NoError(t, client.Close())
	assert.True(t, sess.closed)
}

func TestRemoteTool_Execute(t *testing.T) {
	sess := &fakeSession{
		tools:  []*mcp.Tool{{Name: "tap"}},
		result: &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "tapped"}}},
	}
	tools, err := newFake(sess).Tools(context.Background())
	require.NoError(t, err)

	res, err := tools[0].Execute(context.Background(), json.RawMessage(`{"x":10,"y":20}`), "/ws")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "tapped", res.Message)

	require.Len(t, sess.calls, 1)
	assert.Equal(t, "tap", sess.calls[0].Name)
	assert.Equal(t, map[string]any{"x": float64(10), "y": float64(20)}, sess.calls[0].Arguments)
}

func TestRemoteTool_Errors(t *testing.T) {
	t.Run("server reported error is a soft failure", func(t *testing.T) {
		sess := &fakeSession{
			tools: []*mcp.Tool{{Name: "tap"}},
			result: &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: "element not found"}},
			},
		}
		tools, _ := newFake(sess).Tools(context.Background())
		res, err := tools[0].Execute(context.Background(), nil, "")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "element not found", res.Message)
	})

	t.Run("malformed arguments", func(t *testing.T) {
		sess := &fakeSession{tools: []*mcp.Tool{{Name: "tap"}}}
		tools, _ := newFake(sess).Tools(context.Background())
		_, err := tools[0].Execute(context.Background(), json.RawMessage(`[1,2]`), "")
		var inputErr *tool.InputError
		assert.ErrorAs(t, err, &inputErr)
		assert.Empty(t, sess.calls)
	})

	t.Run("transport failure", func(t *testing.T) {
		sess := &fakeSession{tools: []*mcp.Tool{{Name: "tap"}}, err: errors.New("connection closed")}
		tools, _ := newFake(sess).Tools(context.Background())
		_, err := tools[0].Execute(context.Background(), json.RawMessage(`{}`), "")
		var execErr *tool.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Contains(t, err.Error(), "connection closed")
	})
}

type echoArgs struct {
	Text string `json:"text"`
}

func TestConnect_InMemory(t *testing.T) {
	ctx := context.Background()

	server := mcp.NewServer(&mcp.Implementation{Name: "echo-server", Version: "1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "echo", Description: "Echo text"},
		func(ctx context.Context, req *mcp.CallToolRequest, args echoArgs) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "echo: " + args.Text}}}, nil, nil
		})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = serverSession.Close() }()

	client, err := Connect(ctx, clientTransport, WithName("echo"))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	tools, err := client.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name())

	reg := tool.NewRegistry(tools...)
	echo, ok := reg.Get("echo")
	require.True(t, ok)
	out, err := echo.Execute(ctx, json.RawMessage(`{"text":"hello"}`), "")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "echo: hello", out.Message)
}

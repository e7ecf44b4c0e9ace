// Package mcp bridges Model Context Protocol servers into the repair agent.
// Every tool a server exposes becomes a tool.Tool that can be registered
// next to the built-in workspace tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/i2y/autofix/schema"
	"github.com/i2y/autofix/tool"
)

// session is the part of *mcp.ClientSession the bridge uses.
type session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Client wraps an MCP client session.
type Client struct {
	name    string
	session session
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the MCP client.
type Option func(*clientConfig)

type clientConfig struct {
	name    string
	timeout time.Duration
	logger  *slog.Logger
}

// WithTimeout sets the timeout for tool execution.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithName labels the server in logs and error messages.
func WithName(name string) Option {
	return func(c *clientConfig) {
		c.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

func newConfig(opts []Option) *clientConfig {
	cfg := &clientConfig{
		name:    "mcp",
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewStdioClient starts command as a subprocess and speaks MCP over its
// stdio.
//
// Example:
//
//	client, err := mcp.NewStdioClient(ctx, "./simulator-mcp", nil)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	tools, err := client.Tools(ctx)
func NewStdioClient(ctx context.Context, command string, args []string, opts ...Option) (*Client, error) {
	transport := &mcp.CommandTransport{
		Command: exec.Command(command, args...),
	}
	return Connect(ctx, transport, opts...)
}

// Connect opens a client session over an arbitrary transport.
func Connect(ctx context.Context, transport mcp.Transport, opts ...Option) (*Client, error) {
	cfg := newConfig(opts)

	mcpClient := mcp.NewClient(&mcp.Implementation{
		Name:    "autofix",
		Version: "0.1.0",
	}, nil)

	sess, err := mcpClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server %s: %w", cfg.name, err)
	}

	return newClient(sess, cfg), nil
}

func newClient(sess session, cfg *clientConfig) *Client {
	return &Client{
		name:    cfg.name,
		session: sess,
		timeout: cfg.timeout,
		logger:  cfg.logger,
	}
}

// Tools returns every tool the server exposes as a tool.Tool.
func (c *Client) Tools(ctx context.Context) ([]tool.Tool, error) {
	result, err := c.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("listing MCP tools from %s: %w", c.name, err)
	}

	tools := make([]tool.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		if t == nil {
			continue
		}
		tools = append(tools, &remoteTool{
			client:  c,
			mcpTool: t,
			schema:  inputSchema(t),
		})
	}

	c.logger.Debug("loaded MCP tools", "server", c.name, "count", len(tools))
	return tools, nil
}

// Close closes the MCP client connection.
func (c *Client) Close() error {
	return c.session.Close()
}

// remoteTool exposes one MCP server tool as a tool.Tool.
type remoteTool struct {
	client  *Client
	mcpTool *mcp.Tool
	schema  json.RawMessage
}

func (t *remoteTool) Name() string {
	return t.mcpTool.Name
}

func (t *remoteTool) Description() string {
	return t.mcpTool.Description
}

func (t *remoteTool) Schema() json.RawMessage {
	return t.schema
}

// inputSchema renders the server-provided schema in the form every vendor
// accepts, falling back to an empty object schema.
func inputSchema(t *mcp.Tool) json.RawMessage {
	fallback := json.RawMessage(`{"type":"object","properties":{}}`)
	if t.InputSchema == nil {
		return fallback
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return fallback
	}
	normalized, err := schema.Normalize(raw)
	if err != nil {
		return fallback
	}
	return normalized
}

func (t *remoteTool) Execute(ctx context.Context, input json.RawMessage, _ string) (tool.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.client.timeout)
	defer cancel()

	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	var arguments map[string]any
	if err := json.Unmarshal(input, &arguments); err != nil {
		return tool.Result{}, &tool.InputError{Tool: t.Name(), Cause: fmt.Errorf("parsing arguments: %w", err)}
	}

	result, err := t.client.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.mcpTool.Name,
		Arguments: arguments,
	})
	if err != nil {
		return tool.Result{}, &tool.ExecutionError{
			Tool:  t.Name(),
			Cause: fmt.Errorf("calling MCP tool on %s: %w", t.client.name, err),
		}
	}

	combined := processToolResult(result.Content)
	if result.IsError {
		return tool.Fail(combined, nil), nil
	}
	return tool.Ok(combined, nil), nil
}

// processToolResult extracts text content from MCP tool result.
// Multiple content items are joined with newlines.
// Non-text content (images, resources) are represented as descriptive text.
func processToolResult(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch item := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, item.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s, %d bytes]", item.MIMEType, len(item.Data)))
		case *mcp.EmbeddedResource:
			if item.Resource != nil {
				parts = append(parts, fmt.Sprintf("[Resource: %s]", item.Resource.URI))
			} else {
				parts = append(parts, "[Resource: embedded]")
			}
		}
	}
	return strings.Join(parts, "\n")
}

// ToolsFromMCP starts a stdio server and returns its tools along with a
// cleanup function that stops it.
func ToolsFromMCP(ctx context.Context, command string, args []string, opts ...Option) ([]tool.Tool, func() error, error) {
	mcpClient, err := NewStdioClient(ctx, command, args, opts...)
	if err != nil {
		return nil, nil, err
	}

	tools, err := mcpClient.Tools(ctx)
	if err != nil {
		_ = mcpClient.Close()
		return nil, nil, err
	}

	return tools, mcpClient.Close, nil
}

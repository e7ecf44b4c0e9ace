package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/i2y/autofix/provider"
)

// Registry manages a collection of tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	r.Register(tools...)
	return r
}

// Register adds tools to the registry, replacing any with the same name.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the tool definitions handed to an adapter, sorted by
// name.
func (r *Registry) Definitions() []provider.ToolDefinition {
	tools := r.All()
	defs := make([]provider.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, provider.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	return defs
}

// UnknownToolMessage is the soft error returned for unregistered names.
func UnknownToolMessage(name string) string {
	return fmt.Sprintf("Unknown tool: %s", name)
}

// Dispatch runs call against the named tool. An unknown name is not an
// error: it yields a failed Result so the model can try another tool.
func (r *Registry) Dispatch(ctx context.Context, call provider.ToolCall, workspaceRoot string) (Result, error) {
	t, ok := r.Get(call.Name)
	if !ok {
		msg := UnknownToolMessage(call.Name)
		return Fail(msg, map[string]string{"error": msg}), nil
	}
	return t.Execute(ctx, call.Input, workspaceRoot)
}

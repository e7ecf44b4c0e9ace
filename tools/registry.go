package tools

import "github.com/i2y/autofix/tool"

// All returns every built-in tool the repair agent may use.
func All(runnerOpts ...RunnerOption) []tool.Tool {
	return []tool.Tool{
		DirectoryInspector(),
		CodeEditor(),
		TestRunner(runnerOpts...),
	}
}

// ReadOnly returns tools that don't modify the workspace.
// Includes: directory_inspector
func ReadOnly() []tool.Tool {
	return []tool.Tool{
		DirectoryInspector(),
	}
}

// Registry builds a tool.Registry holding All.
func Registry(runnerOpts ...RunnerOption) *tool.Registry {
	return tool.NewRegistry(All(runnerOpts...)...)
}

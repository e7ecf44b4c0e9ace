// Package tools provides the workspace tools the repair agent can call:
// directory inspection, exact-string code edits and test execution.
package tools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// skippedDirs are never descended into by search and find.
var skippedDirs = map[string]bool{
	"build":       true,
	"DerivedData": true,
}

// resolve maps a workspace-relative (or absolute) path to an absolute path
// inside root. Paths that escape the workspace are rejected.
func resolve(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(absRoot, path)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(absRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}
	return full, nil
}

// relative renders full relative to root for results shown to the model.
func relative(root, full string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return full
	}
	rel, err := filepath.Rel(absRoot, full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(rel)
}

// skipName reports whether a directory entry is hidden or a build output.
func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || skippedDirs[name]
}

// tail keeps the last n bytes of s, which is where build tools print the
// errors that matter.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "...(truncated)...\n" + s[len(s)-n:]
}

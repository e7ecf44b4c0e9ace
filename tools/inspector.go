package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/i2y/autofix/tool"
)

// DirectoryInspectorName is the tool name seen by the model.
const DirectoryInspectorName = "directory_inspector"

const maxSearchMatches = 200

// InspectInput defines the input for the directory inspector.
type InspectInput struct {
	Operation string `json:"operation" jsonschema:"enum=list,enum=read,enum=search,enum=find,description=The operation to perform"`
	Path      string `json:"path" jsonschema:"description=File or directory path relative to the workspace root"`
	Pattern   string `json:"pattern,omitempty" jsonschema:"description=Regex for search or glob for find (e.g. *Tests.swift)"`
}

// Validate implements tool.Validator.
func (in InspectInput) Validate() error {
	if in.Operation == "" {
		return errors.New("operation is required")
	}
	return nil
}

// Entry is one item returned by list.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// SearchMatch is one line matched by search.
type SearchMatch struct {
	File       string `json:"file"`
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
}

// SearchResult is the payload of search.
type SearchResult struct {
	Matches   []SearchMatch `json:"matches"`
	Truncated bool          `json:"truncated,omitempty"`
}

// DirectoryInspector returns the directory inspection tool.
func DirectoryInspector() tool.Tool {
	return tool.MustNewTool(
		DirectoryInspectorName,
		`Inspect the workspace: list directories, read files and search content.
Operations:
- "list": list entries in a directory. Returns [{name, type, path}].
- "read": read a file. Returns {content}.
- "search": search files under path for a regex pattern. Returns {matches: [{file, line_number, content}]}.
- "find": find files under path whose name matches a glob pattern. Returns [path].
Paths are relative to the workspace root.`,
		inspect,
	)
}

func inspect(ctx context.Context, in InspectInput, root string) (tool.Result, error) {
	full, err := resolve(root, in.Path)
	if err != nil {
		return tool.Fail(err.Error(), nil), nil
	}

	switch in.Operation {
	case "list":
		return listDirectory(root, full), nil
	case "read":
		return readFile(full), nil
	case "search":
		if in.Pattern == "" {
			return tool.Fail("pattern is required for search operation", nil), nil
		}
		return searchFiles(ctx, root, full, in.Pattern), nil
	case "find":
		if in.Pattern == "" {
			return tool.Fail("pattern is required for find operation", nil), nil
		}
		return findFiles(root, full, in.Pattern), nil
	default:
		return tool.Fail(fmt.Sprintf("unknown operation: %s", in.Operation), nil), nil
	}
}

func listDirectory(root, dir string) tool.Result {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return tool.Fail(fmt.Sprintf("failed to list directory: %v", err), nil)
	}

	items := make([]Entry, 0, len(entries))
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "directory"
		}
		items = append(items, Entry{
			Name: e.Name(),
			Type: kind,
			Path: relative(root, filepath.Join(dir, e.Name())),
		})
	}
	return tool.Ok(fmt.Sprintf("%d entries", len(items)), items)
}

func readFile(path string) tool.Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return tool.Fail(fmt.Sprintf("failed to read file: %v", err), nil)
	}
	return tool.Ok(fmt.Sprintf("read %d bytes", len(data)), map[string]string{"content": string(data)})
}

func searchFiles(ctx context.Context, root, path, pattern string) tool.Result {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return tool.Fail(fmt.Sprintf("invalid regex pattern: %v", err), nil)
	}

	result := SearchResult{Matches: []SearchMatch{}}
	errFull := errors.New("match limit reached")

	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p != path && skipName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		matches, err := searchFile(p, re)
		if err != nil {
			// Skip files that can't be scanned (e.g. binary files with huge lines)
			return nil
		}
		for _, m := range matches {
			if len(result.Matches) >= maxSearchMatches {
				result.Truncated = true
				return errFull
			}
			m.File = relative(root, p)
			result.Matches = append(result.Matches, m)
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errFull) {
		return tool.Fail(fmt.Sprintf("search failed: %v", walkErr), nil)
	}

	return tool.Ok(fmt.Sprintf("%d matches", len(result.Matches)), result)
}

func searchFile(path string, re *regexp.Regexp) ([]SearchMatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var matches []SearchMatch
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, SearchMatch{LineNumber: lineNum, Content: line})
		}
	}

	return matches, scanner.Err()
}

func findFiles(root, path, pattern string) tool.Result {
	if !doublestar.ValidatePattern(pattern) {
		return tool.Fail(fmt.Sprintf("glob pattern error: %q", pattern), nil)
	}
	if !strings.HasPrefix(pattern, "**/") {
		pattern = "**/" + pattern
	}

	matches, err := doublestar.Glob(os.DirFS(path), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return tool.Fail(fmt.Sprintf("glob pattern error: %v", err), nil)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if hiddenOrBuild(m) {
			continue
		}
		files = append(files, relative(root, filepath.Join(path, filepath.FromSlash(m))))
	}
	return tool.Ok(fmt.Sprintf("%d files", len(files)), files)
}

func hiddenOrBuild(slashPath string) bool {
	for _, seg := range strings.Split(slashPath, "/") {
		if skipName(seg) {
			return true
		}
	}
	return false
}

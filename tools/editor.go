package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/i2y/autofix/tool"
)

// CodeEditorName is the tool name seen by the model.
const CodeEditorName = "code_editor"

// EditInput defines the input for the code editor.
type EditInput struct {
	FilePath   string `json:"file_path" jsonschema:"description=Path to the file relative to the workspace root"`
	OldContent string `json:"old_content" jsonschema:"description=Exact content to be replaced including whitespace"`
	NewContent string `json:"new_content" jsonschema:"description=New content to replace it with"`
}

// Validate implements tool.Validator.
func (in EditInput) Validate() error {
	switch {
	case in.FilePath == "":
		return errors.New("file_path is required")
	case in.OldContent == "":
		return errors.New("old_content must not be empty")
	}
	return nil
}

// EditResult is the payload of a successful edit.
type EditResult struct {
	FilePath     string `json:"file_path"`
	Replacements int    `json:"replacements"`
}

// CodeEditor returns the exact-string replacement tool.
func CodeEditor() tool.Tool {
	return tool.MustNewTool(
		CodeEditorName,
		`Edit a source file in the workspace by exact string replacement.
The old_content must match the file exactly, including whitespace and
indentation; every occurrence is replaced. The edit fails if old_content
is not found.`,
		editFile,
	)
}

func editFile(ctx context.Context, in EditInput, root string) (tool.Result, error) {
	full, err := resolve(root, in.FilePath)
	if err != nil {
		return tool.Fail(err.Error(), nil), nil
	}

	info, err := os.Stat(full)
	if err != nil {
		return tool.Fail(fmt.Sprintf("failed to read file %s: %v", in.FilePath, err), nil), nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return tool.Fail(fmt.Sprintf("failed to read file %s: %v", in.FilePath, err), nil), nil
	}
	current := string(data)

	count := strings.Count(current, in.OldContent)
	if count == 0 {
		return tool.Fail(
			fmt.Sprintf("old content not found in file: %s. It must match exactly, including whitespace.", in.FilePath),
			nil,
		), nil
	}

	updated := strings.ReplaceAll(current, in.OldContent, in.NewContent)
	if err := os.WriteFile(full, []byte(updated), info.Mode().Perm()); err != nil {
		return tool.Fail(fmt.Sprintf("failed to write file %s: %v", in.FilePath, err), nil), nil
	}

	return tool.Ok(
		fmt.Sprintf("successfully edited file: %s", in.FilePath),
		EditResult{FilePath: relative(root, full), Replacements: count},
	), nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/i2y/autofix/journal"
)

func history(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stdout)
	workspace := fs.String("workspace", ".", "Project root whose journal to read")
	testID := fs.String("test-id", "", "Only show sessions for this test")
	limit := fs.Int("limit", 20, "Maximum sessions to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	root, err := filepath.Abs(*workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	path := journal.DefaultPath(root)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		_, err := fmt.Fprintf(stdout, "no sessions recorded in %s\n", root)
		return err
	}

	j, err := journal.Open(ctx, path)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.List(ctx, *testID, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tITER\tTOKENS\tDURATION\tPROVIDER\tTEST\tLOCATION")
	for _, e := range entries {
		loc := "-"
		if e.File != "" {
			loc = fmt.Sprintf("%s:%d", e.File, e.Line)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s/%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), e.Status, e.Iterations,
			e.InputTokens+e.OutputTokens, e.Duration().Round(time.Second),
			e.Provider, e.Model, e.TestID, loc)
	}
	return tw.Flush()
}

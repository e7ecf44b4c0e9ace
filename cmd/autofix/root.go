package main

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const usage = `autofix repairs failing iOS UI tests with a language model.

Usage:
  autofix <command> [flags]

Commands:
  fix        Run a repair session for one failing test
  history    Show recorded repair sessions for a workspace
  providers  List supported providers and their defaults

Flags:
  -h, --help  Show this help message`

// execute runs the CLI dispatcher with the provided arguments.
func execute(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return printUsage(stdout)
	}

	switch args[0] {
	case "fix":
		return fix(ctx, args[1:], stdout)
	case "history":
		return history(ctx, args[1:], stdout)
	case "providers":
		return listProviders(stdout)
	case "help", "-h", "--help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage(w io.Writer) error {
	_, err := fmt.Fprintln(w, strings.TrimSpace(usage))
	return err
}

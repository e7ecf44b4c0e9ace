package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/i2y/autofix/tool"
)

// TestRunnerName is the tool name seen by the model.
const TestRunnerName = "test_runner"

const (
	// DefaultTestCommand is the build tool invoked by the test runner.
	DefaultTestCommand = "xcodebuild"
	// DefaultDestination is the simulator the tests run on.
	DefaultDestination = "platform=iOS Simulator,name=iPhone 17 Pro"
	// DefaultTestTimeout bounds a single build or test invocation.
	DefaultTestTimeout = 15 * time.Minute

	artifactRoot   = ".autofix/test-runner-tool"
	maxOutputBytes = 16 * 1024
)

// TestRunnerInput defines the input for the test runner.
type TestRunnerInput struct {
	Operation      string `json:"operation" jsonschema:"enum=build,enum=test,description=The operation to perform: build or test"`
	TestIdentifier string `json:"test_identifier" jsonschema:"description=Full test identifier URL"`
}

// Validate implements tool.Validator.
func (in TestRunnerInput) Validate() error {
	switch {
	case in.Operation == "":
		return errors.New("operation is required")
	case in.TestIdentifier == "":
		return errors.New("test_identifier is required")
	}
	return nil
}

// TestReport is the payload of every build or test the runner executed.
type TestReport struct {
	Operation      string `json:"operation"`
	TestIdentifier string `json:"test_identifier"`
	ExitCode       int    `json:"exit_code"`
	Stdout         string `json:"stdout"`
	Stderr         string `json:"stderr"`
	ResultBundle   string `json:"result_bundle,omitempty"`
	ArtifactDir    string `json:"artifact_dir"`
}

// FailureArtifact implements tool.TestFailure.
func (r TestReport) FailureArtifact() string {
	if r.ResultBundle != "" {
		return r.ResultBundle
	}
	return r.ArtifactDir
}

// testID is a parsed test://com.apple.xcode/{scheme}/{target}/{class}/{method}.
type testID struct {
	scheme string
	target string
	// only is the -only-testing argument: target/class/method.
	only string
}

func parseTestID(s string) (testID, bool) {
	rest, ok := strings.CutPrefix(s, "test://")
	if !ok {
		return testID{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 4 {
		return testID{}, false
	}
	return testID{
		scheme: parts[1],
		target: parts[2],
		only:   strings.Join(parts[2:], "/"),
	}, true
}

// RunnerOption configures the test runner.
type RunnerOption func(*testRunner)

// WithCommand sets the executable invoked for build and test.
func WithCommand(cmd string) RunnerOption {
	return func(r *testRunner) {
		if cmd != "" {
			r.command = cmd
		}
	}
}

// WithDestination sets the -destination argument.
func WithDestination(dest string) RunnerOption {
	return func(r *testRunner) {
		if dest != "" {
			r.destination = dest
		}
	}
}

// WithTimeout bounds each invocation.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *testRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *testRunner) {
		r.logger = logger
	}
}

type testRunner struct {
	command     string
	destination string
	timeout     time.Duration
	logger      *slog.Logger
	newID       func() string
}

// TestRunner returns the build-and-test tool.
func TestRunner(opts ...RunnerOption) tool.Tool {
	r := &testRunner{
		command:     DefaultTestCommand,
		destination: DefaultDestination,
		timeout:     DefaultTestTimeout,
		logger:      slog.Default(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	return tool.MustNewTool(
		TestRunnerName,
		`Build and run iOS UI tests to validate fixes.

Operations:
- "build": compile the project to check that code changes are valid
- "test": run the specific UI test to check whether it passes

The test_identifier format is: test://com.apple.xcode/{scheme}/{target}/{class}/{method}
"build" uses the target component; "test" uses the scheme and the full identifier.

Returns exit code, stdout, stderr and the result bundle path.`,
		r.run,
	)
}

func (r *testRunner) run(ctx context.Context, in TestRunnerInput, root string) (tool.Result, error) {
	if in.Operation != "build" && in.Operation != "test" {
		return tool.Fail(fmt.Sprintf("unknown operation: %s", in.Operation), nil), nil
	}
	id, ok := parseTestID(in.TestIdentifier)
	if !ok {
		return tool.Fail(fmt.Sprintf("invalid test identifier format: %s", in.TestIdentifier), nil), nil
	}

	artifacts := filepath.Join(root, filepath.FromSlash(artifactRoot), r.newID())
	buildDir := filepath.Join(artifacts, "build")
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return tool.Fail(fmt.Sprintf("failed to create build directory: %v", err), nil), nil
	}

	report := TestReport{
		Operation:      in.Operation,
		TestIdentifier: in.TestIdentifier,
		ArtifactDir:    artifacts,
	}

	var args []string
	var subject string
	switch in.Operation {
	case "build":
		subject = id.target
		args = []string{
			"build",
			"-target", id.target,
			"-destination", r.destination,
			"-derivedDataPath", buildDir,
		}
	case "test":
		testDir := filepath.Join(artifacts, "test")
		if err := os.MkdirAll(testDir, 0o755); err != nil {
			return tool.Fail(fmt.Sprintf("failed to create test directory: %v", err), nil), nil
		}
		report.ResultBundle = filepath.Join(testDir, "result.xcresult")
		subject = id.only
		args = []string{
			"test",
			"-scheme", id.scheme,
			"-destination", r.destination,
			"-only-testing:" + id.only,
			"-derivedDataPath", buildDir,
			"-resultBundlePath", report.ResultBundle,
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.command, args...)
	cmd.Dir = root
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("running test tool", "operation", in.Operation, "subject", subject, "artifacts", artifacts)
	start := time.Now()
	err := cmd.Run()

	report.Stdout = tail(stdout.String(), maxOutputBytes)
	report.Stderr = tail(stderr.String(), maxOutputBytes)
	if report.ResultBundle != "" {
		if _, statErr := os.Stat(report.ResultBundle); statErr != nil {
			report.ResultBundle = ""
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			report.ExitCode = -1
			return tool.Fail(fmt.Sprintf("%s timed out after %s: %s", in.Operation, r.timeout, subject), report), nil
		case ctx.Err() != nil:
			return tool.Result{}, &tool.ExecutionError{Tool: TestRunnerName, Cause: ctx.Err()}
		case errors.As(err, &exitErr):
			report.ExitCode = exitErr.ExitCode()
		default:
			return tool.Result{}, &tool.ExecutionError{
				Tool:  TestRunnerName,
				Cause: fmt.Errorf("failed to execute %s: %w", r.command, err),
			}
		}
	}

	r.logger.Info("test tool finished",
		"operation", in.Operation,
		"exit_code", report.ExitCode,
		"duration", time.Since(start).Round(time.Millisecond))

	if report.ExitCode != 0 {
		if in.Operation == "build" {
			return tool.Fail(fmt.Sprintf("Build failed for target: %s (exit code: %d)", subject, report.ExitCode), report), nil
		}
		return tool.Fail(fmt.Sprintf("Test failed: %s (exit code: %d)", subject, report.ExitCode), report), nil
	}
	if in.Operation == "build" {
		return tool.Ok(fmt.Sprintf("Build succeeded for target: %s", subject), report), nil
	}
	return tool.Ok(fmt.Sprintf("Test passed: %s", subject), report), nil
}

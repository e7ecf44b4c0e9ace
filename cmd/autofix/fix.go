package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/i2y/autofix/agent"
	"github.com/i2y/autofix/config"
	"github.com/i2y/autofix/journal"
	"github.com/i2y/autofix/mcp"
	"github.com/i2y/autofix/prompt"
	"github.com/i2y/autofix/provider"
	"github.com/i2y/autofix/ratelimit"
	"github.com/i2y/autofix/tool"
	"github.com/i2y/autofix/tools"
)

type fixOptions struct {
	workspace     string
	file          string
	testID        string
	testName      string
	failure       string
	snapshot      string
	configPath    string
	provider      string
	model         string
	mode          string
	promptFile    string
	maxIterations int
	noJournal     bool
	verbose       bool
}

func parseFixFlags(args []string, out io.Writer) (*fixOptions, error) {
	fs := flag.NewFlagSet("fix", flag.ContinueOnError)
	fs.SetOutput(out)

	o := &fixOptions{}
	fs.StringVar(&o.workspace, "workspace", "", "Project root the agent works in (defaults to workspace.root)")
	fs.StringVar(&o.file, "file", "", "Path to the failing test's source file (required)")
	fs.StringVar(&o.testID, "test-id", "", "Test identifier, test://<scheme>/<target>/<class>/<method> (required)")
	fs.StringVar(&o.testName, "test-name", "", "Human-readable test name (defaults to the last test-id component)")
	fs.StringVar(&o.failure, "failure", "", "Failure message reported by the test run")
	fs.StringVar(&o.snapshot, "snapshot", "", "Screenshot of the UI at the failure point")
	fs.StringVar(&o.configPath, "config", "", "Configuration file (.yaml, .yml or .toml)")
	fs.StringVar(&o.provider, "provider", "", "Provider override: claude, openai, ollama or gemini")
	fs.StringVar(&o.model, "model", "", "Model override")
	fs.StringVar(&o.mode, "mode", "", "Prompt mode: "+strings.Join(prompt.Builtins(), " or "))
	fs.StringVar(&o.promptFile, "prompt", "", "Custom prompt template file")
	fs.IntVar(&o.maxIterations, "max-iterations", 0, "Maximum model calls per session")
	fs.BoolVar(&o.noJournal, "no-journal", false, "Don't record the session in the workspace journal")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var missing []string
	for _, req := range []struct{ name, value string }{
		{"--file", o.file},
		{"--test-id", o.testID},
	} {
		if req.value == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return o, nil
}

func fix(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseFixFlags(args, stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	outcome, err := runFix(ctx, o, logger)
	if err != nil {
		return err
	}
	return printOutcome(stdout, outcome)
}

func runFix(ctx context.Context, o *fixOptions, logger *slog.Logger) (*agent.Outcome, error) {
	cfgFile, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfgFile, o); err != nil {
		return nil, err
	}

	if cfgFile.Workspace.Root == "" {
		return nil, errors.New("no workspace: pass --workspace or set workspace.root")
	}
	workspace, err := filepath.Abs(cfgFile.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	testFile := o.file
	if !filepath.IsAbs(testFile) {
		testFile = filepath.Join(workspace, testFile)
	}
	source, err := os.ReadFile(testFile)
	if err != nil {
		return nil, fmt.Errorf("read test file: %w", err)
	}

	providerCfg, err := cfgFile.ProviderConfig()
	if err != nil {
		return nil, err
	}
	p, err := provider.New(providerCfg)
	if err != nil {
		return nil, err
	}
	logger.Info("provider ready", "provider", providerCfg.Type, "model", providerCfg.Model, "api_base", providerCfg.APIBase)

	tmpl, err := prompt.Resolve(cfgFile.Agent.PromptMode, cfgFile.Agent.PromptFile)
	if err != nil {
		return nil, err
	}

	reg, closeMCP, err := buildTools(ctx, cfgFile, tmpl, logger)
	if err != nil {
		return nil, err
	}
	defer closeMCP()

	testName := o.testName
	if testName == "" {
		testName = o.testID[strings.LastIndex(o.testID, "/")+1:]
	}
	text, err := tmpl.Render(prompt.Failure{
		TestName:       testName,
		TestIdentifier: o.testID,
		Message:        o.failure,
		TestFile:       testFile,
		TestSource:     string(source),
		Workspace:      workspace,
		HasSnapshot:    o.snapshot != "",
	})
	if err != nil {
		return nil, err
	}
	initial := []agent.Block{agent.Text(text)}
	if o.snapshot != "" {
		initial = append(initial, agent.Attachment(o.snapshot))
	}

	engine := agent.New(p, reg,
		agent.WithLimiter(ratelimit.FromConfig(providerCfg, ratelimit.WithLogger(logger))),
		agent.WithMaxIterations(cfgFile.Agent.MaxIterations),
		agent.WithMaxTokens(cfgFile.Agent.MaxTokens),
		agent.WithTemperature(*cfgFile.Agent.Temperature),
		agent.WithWorkspace(workspace),
		agent.WithRepairFile(testFile),
		agent.WithLogger(logger),
	)

	started := time.Now()
	outcome, runErr := engine.Run(ctx, initial)
	if !o.noJournal {
		e := journalEntry(outcome, runErr)
		e.TestID = o.testID
		e.Provider = string(providerCfg.Type)
		e.Model = providerCfg.Model
		e.StartedAt = started
		e.FinishedAt = time.Now()
		// Interrupted sessions are still recorded.
		if err := record(context.WithoutCancel(ctx), journal.DefaultPath(workspace), e); err != nil {
			logger.Warn("could not record session", "error", err)
		}
	}
	return outcome, runErr
}

func journalEntry(outcome *agent.Outcome, runErr error) journal.Entry {
	if runErr != nil {
		e := journal.Entry{Status: journal.StatusError, Error: runErr.Error()}
		var sessErr *agent.SessionError
		if errors.As(runErr, &sessErr) {
			e.SessionID = sessErr.SessionID
			e.Iterations = sessErr.Iteration
			e.InputTokens = sessErr.Usage.InputTokens
			e.OutputTokens = sessErr.Usage.OutputTokens
		}
		return e
	}
	e := journal.Entry{
		SessionID:    outcome.SessionID,
		Status:       outcome.Status.String(),
		Iterations:   outcome.Iterations,
		InputTokens:  outcome.Usage.InputTokens,
		OutputTokens: outcome.Usage.OutputTokens,
	}
	if outcome.Location != nil {
		e.File = outcome.Location.File
		e.Line = outcome.Location.Line
	}
	return e
}

func record(ctx context.Context, path string, e journal.Entry) error {
	if e.SessionID == "" {
		return nil
	}
	j, err := journal.Open(ctx, path)
	if err != nil {
		return err
	}
	defer j.Close()
	return j.Record(ctx, e)
}

func applyFlags(f *config.File, o *fixOptions) error {
	if o.provider != "" {
		t, err := provider.ParseType(o.provider)
		if err != nil {
			return err
		}
		current := provider.TypeClaude
		if f.Provider.Type != "" {
			current, _ = provider.ParseType(f.Provider.Type)
		}
		if t != current {
			// Another provider's key, base and model don't carry over
			// unless they came from the environment. Timeouts, retries
			// and the rate limit do.
			f.Provider.Type = string(t)
			f.Provider.APIKey = os.Getenv(config.KeyEnv(t))
			f.Provider.APIBase = strings.TrimSpace(os.Getenv(config.EnvAPIBase))
			f.Provider.Model = strings.TrimSpace(os.Getenv(config.EnvModel))
		}
	}
	if o.model != "" {
		f.Provider.Model = o.model
	}
	if o.mode != "" {
		f.Agent.PromptMode = o.mode
	}
	if o.promptFile != "" {
		f.Agent.PromptFile = o.promptFile
	}
	if o.maxIterations > 0 {
		f.Agent.MaxIterations = o.maxIterations
	}
	if o.workspace != "" {
		f.Workspace.Root = o.workspace
	}
	return nil
}

// buildTools registers the built-in tools the prompt template allows plus
// every configured MCP server's tools. The returned func stops the servers.
func buildTools(ctx context.Context, f *config.File, tmpl *prompt.Template, logger *slog.Logger) (*tool.Registry, func(), error) {
	ws := f.Workspace
	runnerOpts := []tools.RunnerOption{tools.WithLogger(logger)}
	if ws.TestCommand != "" {
		runnerOpts = append(runnerOpts, tools.WithCommand(ws.TestCommand))
	}
	if ws.Destination != "" {
		runnerOpts = append(runnerOpts, tools.WithDestination(ws.Destination))
	}
	if ws.TestTimeoutSecs > 0 {
		runnerOpts = append(runnerOpts, tools.WithTimeout(time.Duration(ws.TestTimeoutSecs)*time.Second))
	}

	reg := tool.NewRegistry()
	for _, t := range tools.All(runnerOpts...) {
		if tmpl.AllowsTool(t.Name()) {
			reg.Register(t)
		}
	}

	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("stopping MCP server", "error", err)
			}
		}
	}
	for _, s := range f.MCP {
		opts := []mcp.Option{mcp.WithName(s.Name), mcp.WithLogger(logger)}
		if s.TimeoutSecs > 0 {
			opts = append(opts, mcp.WithTimeout(time.Duration(s.TimeoutSecs)*time.Second))
		}
		remote, closeFn, err := mcp.ToolsFromMCP(ctx, s.Command, s.Args, opts...)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("starting MCP server %s: %w", s.Name, err)
		}
		closers = append(closers, closeFn)
		for _, t := range remote {
			if tmpl.AllowsTool(t.Name()) {
				reg.Register(t)
			}
		}
		logger.Info("MCP server connected", "server", s.Name, "tools", len(remote))
	}
	return reg, closeAll, nil
}

type locationPayload struct {
	File string `json:"file"`
	Line int    `json:"line"`
	URL  string `json:"url"`
}

func printOutcome(w io.Writer, o *agent.Outcome) error {
	fmt.Fprintf(w, "session:    %s\n", o.SessionID)
	fmt.Fprintf(w, "status:     %s\n", o.Status)
	fmt.Fprintf(w, "iterations: %d\n", o.Iterations)
	fmt.Fprintf(w, "tokens:     %d in, %d out\n", o.Usage.InputTokens, o.Usage.OutputTokens)

	if o.Status != agent.StatusGaveUp {
		return nil
	}
	if o.Location == nil {
		_, err := fmt.Fprintln(w, "location:   unknown")
		return err
	}
	data, err := json.Marshal(locationPayload{
		File: o.Location.File,
		Line: o.Location.Line,
		URL:  o.Location.XcodeURL(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "location:   %s\n", data)
	_, err = fmt.Fprintln(w, o.Location.XcodeURL())
	return err
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/autofix/agent"
	"github.com/i2y/autofix/config"
	"github.com/i2y/autofix/journal"
	"github.com/i2y/autofix/provider"
)

func TestExecute_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"help"}, {"--help"}} {
		var out bytes.Buffer
		require.NoError(t, execute(context.Background(), args, &out))
		assert.Contains(t, out.String(), "Commands:")
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := execute(context.Background(), []string{"repair"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "repair"`)
}

func TestExecute_Providers(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"providers"}, &out))

	got := out.String()
	for _, want := range []string{"claude", "openai", "ollama", "gemini", "ANTHROPIC_API_KEY", "llama2"} {
		assert.Contains(t, got, want)
	}
}

func TestParseFixFlags(t *testing.T) {
	var out bytes.Buffer
	_, err := parseFixFlags([]string{"--workspace", "/ws"}, &out)
	require.Error(t, err)
	assert.Equal(t, "missing required flags: --file, --test-id", err.Error())

	o, err := parseFixFlags([]string{
		"--workspace", "/ws", "--file", "T.swift", "--test-id", "test://s/t/C/m",
		"--provider", "gemini", "--max-iterations", "3", "--verbose",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "gemini", o.provider)
	assert.Equal(t, 3, o.maxIterations)
	assert.True(t, o.verbose)
}

func TestApplyFlags(t *testing.T) {
	f := &config.File{Provider: config.ProviderSection{Type: "openai", APIKey: "sk-file", Model: "gpt-4o"}}
	t.Setenv("GEMINI_API_KEY", "AIzaFromEnv")
	t.Setenv(config.EnvAPIBase, "")
	t.Setenv(config.EnvModel, "")

	require.NoError(t, applyFlags(f, &fixOptions{provider: "gemini", mode: "standard", maxIterations: 4}))
	assert.Equal(t, "gemini", f.Provider.Type)
	assert.Equal(t, "AIzaFromEnv", f.Provider.APIKey)
	assert.Empty(t, f.Provider.Model, "another provider's model does not carry over")
	assert.Equal(t, "standard", f.Agent.PromptMode)
	assert.Equal(t, 4, f.Agent.MaxIterations)

	f = &config.File{Provider: config.ProviderSection{Type: "openai", Model: "gpt-4o"}}
	require.NoError(t, applyFlags(f, &fixOptions{provider: "OpenAI"}))
	assert.Equal(t, "gpt-4o", f.Provider.Model, "same provider keeps its settings")

	assert.Error(t, applyFlags(&config.File{}, &fixOptions{provider: "bard"}))
}

func TestApplyFlags_ProviderSwitchKeepsEnvOverrides(t *testing.T) {
	for _, k := range []string{config.EnvProvider, config.EnvAPIBase, config.EnvModel,
		config.EnvTimeoutSecs, config.EnvMaxRetries, config.EnvRateLimitTPM} {
		t.Setenv(k, "")
	}
	t.Setenv(config.EnvModel, "gemini-2.5-pro")
	t.Setenv(config.EnvTimeoutSecs, "45")
	t.Setenv(config.EnvMaxRetries, "1")
	t.Setenv(config.EnvRateLimitTPM, "500")
	t.Setenv("GEMINI_API_KEY", "AIzaFromEnv")

	f, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, applyFlags(f, &fixOptions{provider: "gemini"}))

	cfg, err := f.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, provider.TypeGemini, cfg.Type)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
	assert.Equal(t, "https://generativelanguage.googleapis.com", cfg.APIBase)
	assert.Equal(t, 45, cfg.TimeoutSecs)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 500, cfg.TokensPerMinute())
	assert.Equal(t, "AIzaFromEnv", cfg.APIKey.Reveal())
}

// chatServer replays scripted Chat Completions responses and records each
// request body.
type chatServer struct {
	mu        sync.Mutex
	responses []string
	requests  []map[string]any
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.requests = append(s.requests, body)

	i := len(s.requests) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.responses[i]))
}

func completion(message string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4","choices":[{"index":0,"message":` +
		message + `,"finish_reason":"stop"}],"usage":{"prompt_tokens":100,"completion_tokens":20,"total_tokens":120}}`
}

func TestFix_EndToEnd(t *testing.T) {
	workspace := t.TempDir()
	testFile := filepath.Join(workspace, "LoginTests.swift")
	require.NoError(t, os.WriteFile(testFile, []byte("app.buttons[\"Login\"].tap()\n"), 0o644))

	args, err := json.Marshal(map[string]string{
		"file_path":   "LoginTests.swift",
		"old_content": `"Login"`,
		"new_content": `"Sign In"`,
	})
	require.NoError(t, err)
	toolCall, err := json.Marshal(map[string]any{
		"role":    "assistant",
		"content": "",
		"tool_calls": []map[string]any{{
			"id":       "call_1",
			"type":     "function",
			"function": map[string]string{"name": "code_editor", "arguments": string(args)},
		}},
	})
	require.NoError(t, err)
	giveUp, err := json.Marshal(map[string]string{
		"role":    "assistant",
		"content": "GIVING UP: the button is missing\nFile: " + testFile + "\nLine: 1",
	})
	require.NoError(t, err)

	srv := &chatServer{responses: []string{completion(string(toolCall)), completion(string(giveUp))}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	t.Setenv(config.EnvProvider, "openai")
	t.Setenv(config.EnvAPIBase, ts.URL)
	t.Setenv(config.EnvModel, "")
	t.Setenv(config.EnvTimeoutSecs, "")
	t.Setenv(config.EnvMaxRetries, "0")
	t.Setenv(config.EnvRateLimitTPM, "0")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	var out bytes.Buffer
	err = execute(context.Background(), []string{"fix",
		"--workspace", workspace,
		"--file", "LoginTests.swift",
		"--test-id", "test://App/AppUITests/LoginTests/testLogin",
		"--failure", "Button \"Login\" not found",
	}, &out)
	require.NoError(t, err)

	data, err := os.ReadFile(testFile)
	require.NoError(t, err)
	assert.Equal(t, "app.buttons[\"Sign In\"].tap()\n", string(data))

	got := out.String()
	assert.Contains(t, got, "status:     gave_up")
	assert.Contains(t, got, "iterations: 2")
	assert.Contains(t, got, `"line":1`)
	assert.Contains(t, got, "xed://open?file=")

	require.Len(t, srv.requests, 2)
	assert.NotEmpty(t, srv.requests[0]["tools"], "tools are offered to the model")
	first, _ := json.Marshal(srv.requests[0]["messages"])
	assert.Contains(t, string(first), "testLogin")
	second, _ := json.Marshal(srv.requests[1]["messages"])
	assert.Contains(t, string(second), "replacements", "the edit result is fed back")

	out.Reset()
	require.NoError(t, execute(context.Background(), []string{"history", "--workspace", workspace}, &out))
	assert.Contains(t, out.String(), "gave_up")
	assert.Contains(t, out.String(), "testLogin")
	assert.Contains(t, out.String(), "LoginTests.swift:1")
}

func TestHistory_Empty(t *testing.T) {
	var out bytes.Buffer
	ws := t.TempDir()
	require.NoError(t, execute(context.Background(), []string{"history", "--workspace", ws}, &out))
	assert.Contains(t, out.String(), "no sessions recorded")
}

func TestJournalEntry(t *testing.T) {
	e := journalEntry(&agent.Outcome{
		SessionID:  "s1",
		Status:     agent.StatusGaveUp,
		Iterations: 4,
		Location:   &agent.Location{File: "/ws/View.swift", Line: 9},
		Usage:      provider.NewUsage(100, 20),
	}, nil)
	assert.Equal(t, "gave_up", e.Status)
	assert.Equal(t, "/ws/View.swift", e.File)
	assert.Equal(t, 9, e.Line)
	assert.Equal(t, 100, e.InputTokens)

	e = journalEntry(nil, &agent.SessionError{
		SessionID: "s2",
		Iteration: 2,
		Usage:     provider.NewUsage(250, 40),
		Cause:     errors.New("boom"),
	})
	assert.Equal(t, journal.StatusError, e.Status)
	assert.Equal(t, "s2", e.SessionID)
	assert.Equal(t, 2, e.Iterations)
	assert.Equal(t, 250, e.InputTokens)
	assert.Equal(t, 40, e.OutputTokens)
	assert.Contains(t, e.Error, "boom")
}

func TestFix_MissingTestFile(t *testing.T) {
	t.Setenv(config.EnvProvider, "ollama")
	var out bytes.Buffer
	err := execute(context.Background(), []string{"fix",
		"--workspace", t.TempDir(),
		"--file", "Missing.swift",
		"--test-id", "test://App/AppUITests/LoginTests/testLogin",
	}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read test file")
}

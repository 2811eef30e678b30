package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/askterm/askterm/config"
	"github.com/askterm/askterm/errors"
	"github.com/askterm/askterm/llm"
	"github.com/askterm/askterm/session"
)

type approveFunc func(prompt string) bool

func (f approveFunc) Approve(prompt string) bool { return f(prompt) }

// fakeTerminal scripts command execution for the command tool tests.
type fakeTerminal struct {
	output     string
	err        error
	executed   []string
	terminated bool
}

func (f *fakeTerminal) Execute(command string) (string, error) {
	f.executed = append(f.executed, command)
	return f.output, f.err
}

func (f *fakeTerminal) Terminate() error {
	f.terminated = true
	return nil
}

func newTestCommandTool(fake *fakeTerminal, allowed []string, approver Approver) *ExecuteCommandTool {
	t := NewExecuteCommandTool(allowed, approver)
	t.newSession = func() (terminal, error) { return fake, nil }
	return t
}

func TestSafeCommandRunsWithoutApproval(t *testing.T) {
	fake := &fakeTerminal{output: "file.txt"}
	tool := newTestCommandTool(fake, nil, approveFunc(func(string) bool {
		t.Error("safe command must not prompt")
		return false
	}))

	out, err := tool.Execute(context.Background(), map[string]any{"command": "ls"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "file.txt" {
		t.Errorf("output = %v", out)
	}
	if len(fake.executed) != 1 || fake.executed[0] != "ls" {
		t.Errorf("executed = %v", fake.executed)
	}
}

func TestDeclinedCommandNeverReachesTerminal(t *testing.T) {
	tool := newTestCommandTool(nil, nil, approveFunc(func(string) bool { return false }))
	tool.newSession = func() (terminal, error) {
		t.Fatal("declined command must not open a session")
		return nil, nil
	}

	out, err := tool.Execute(context.Background(), map[string]any{"command": "rm notes.txt"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != rejectedMessage {
		t.Errorf("output = %v, want %q", out, rejectedMessage)
	}
}

func TestAllowlistBypassesApproval(t *testing.T) {
	fake := &fakeTerminal{output: "ok"}
	tool := newTestCommandTool(fake, []string{`^touch .*`}, approveFunc(func(string) bool {
		t.Error("allowlisted command must not prompt")
		return false
	}))

	if _, err := tool.Execute(context.Background(), map[string]any{"command": "touch marker"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(fake.executed) != 1 {
		t.Errorf("executed = %v", fake.executed)
	}
}

func TestApprovedCommandRuns(t *testing.T) {
	fake := &fakeTerminal{output: "installed"}
	tool := newTestCommandTool(fake, nil, approveFunc(func(string) bool { return true }))

	out, err := tool.Execute(context.Background(), map[string]any{"command": "apt install jq"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "installed" {
		t.Errorf("output = %v", out)
	}
}

func TestCloseTerminatesSession(t *testing.T) {
	fake := &fakeTerminal{output: "x"}
	tool := newTestCommandTool(fake, nil, nil)

	if _, err := tool.Execute(context.Background(), map[string]any{"command": "ls"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := tool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fake.terminated {
		t.Error("session not terminated")
	}
}

func TestCloseWithoutSessionIsNoop(t *testing.T) {
	tool := NewExecuteCommandTool(nil, nil)
	if err := tool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// failTool always errors, for exercising result folding.
type failTool struct{}

func (failTool) Name() string        { return "fail" }
func (failTool) Description() string { return "always fails" }
func (failTool) Def() llm.ToolDef    { return llm.ToolDef{Name: "fail"} }
func (failTool) Execute(context.Context, map[string]any) (any, error) {
	return nil, errors.New("boom")
}

func TestDispatchFoldsErrorsIntoContent(t *testing.T) {
	r := &Registry{tools: map[string]Tool{}}
	r.Register(failTool{})

	res := r.Dispatch(context.Background(), session.ToolCall{ID: "1", Name: "fail"})
	content, ok := res.Content.(string)
	if !ok || !strings.Contains(content, "boom") {
		t.Errorf("content = %v", res.Content)
	}
	if res.Call.ID != "1" {
		t.Errorf("call not echoed back: %+v", res.Call)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := &Registry{tools: map[string]Tool{}}
	res := r.Dispatch(context.Background(), session.ToolCall{Name: "nope"})
	content, ok := res.Content.(string)
	if !ok || !strings.Contains(content, "unknown tool") {
		t.Errorf("content = %v", res.Content)
	}
}

func TestRegistryComposition(t *testing.T) {
	cfg := &config.Config{}
	r := NewRegistry(cfg, nil)
	if _, ok := r.Get("execute_command"); !ok {
		t.Error("execute_command missing")
	}
	if _, ok := r.Get("web_search"); ok {
		t.Error("web_search registered without a SearXNG endpoint")
	}

	cfg.SearxBaseURL = "http://localhost:8080"
	r = NewRegistry(cfg, nil)
	if _, ok := r.Get("web_search"); !ok {
		t.Error("web_search missing despite configured endpoint")
	}

	defs := r.Defs()
	if len(defs) != 4 {
		t.Fatalf("defs = %d, want 4", len(defs))
	}
	if defs[0].Name != "execute_command" {
		t.Errorf("first def = %q", defs[0].Name)
	}
}

func TestIsCommandAllowed(t *testing.T) {
	allowed := []string{`^git status$`, "literal(pattern"}
	if !isCommandAllowed("git status", allowed) {
		t.Error("regex match rejected")
	}
	if isCommandAllowed("git push", allowed) {
		t.Error("non-matching command accepted")
	}
	// Broken regex falls back to exact comparison.
	if !isCommandAllowed("literal(pattern", allowed) {
		t.Error("literal fallback rejected")
	}
}

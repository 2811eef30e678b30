package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/askterm/askterm/errors"
	"github.com/askterm/askterm/llm"
	"github.com/askterm/askterm/safety"
	"github.com/askterm/askterm/term"
)

// sessionName is the tmux session commands run in. Reusing one name keeps
// shell state (cwd, variables) alive across commands within a run and across
// runs on the same machine.
const sessionName = "askterm_session"

const rejectedMessage = "Command rejected by the user."

// Approver asks the user whether a gated action may proceed. Implementations
// must default to declining.
type Approver interface {
	Approve(prompt string) bool
}

// StdinApprover reads a y/N answer from standard input.
type StdinApprover struct{}

func (StdinApprover) Approve(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// terminal is the slice of term.Session the command tool depends on,
// separated so tests can substitute a fake.
type terminal interface {
	Execute(command string) (string, error)
	Terminate() error
}

// ExecuteCommandTool runs shell commands in a shared tmux session. Commands
// classified as modifying or dangerous are gated behind user approval unless
// they match an allowlist pattern.
type ExecuteCommandTool struct {
	mu              sync.Mutex
	session         terminal
	newSession      func() (terminal, error)
	allowedCommands []string
	approver        Approver
}

func NewExecuteCommandTool(allowedCommands []string, approver Approver) *ExecuteCommandTool {
	return &ExecuteCommandTool{
		newSession: func() (terminal, error) {
			return term.NewSession(sessionName)
		},
		allowedCommands: allowedCommands,
		approver:        approver,
	}
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }

func (t *ExecuteCommandTool) Description() string {
	return "Executes a shell command in the user's terminal session and returns its output. " +
		"Read-only commands run immediately; commands that modify files, packages, system state, " +
		"git state or the network require the user's approval first. Args: command (string)."
}

func (t *ExecuteCommandTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name(),
		Description: t.Description(),
		Properties: map[string]llm.ToolProperty{
			"command": {Type: "string", Description: "The shell command to execute."},
		},
		Required: []string{"command"},
	}
}

// Execute classifies the command, obtains approval when required, and runs
// it. A declined command is not an error; the model receives a fixed
// rejection message instead.
func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	command, ok := args["command"].(string)
	if !ok || strings.TrimSpace(command) == "" {
		return nil, errors.New("missing or invalid 'command' argument")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	decision := safety.Classify(command)
	if decision.NeedsApproval && !isCommandAllowed(command, t.allowedCommands) {
		printCommandBox(os.Stderr, command, decision.Reason)
		if t.approver == nil || !t.approver.Approve("Run this command?") {
			return rejectedMessage, nil
		}
	}

	if t.session == nil {
		sess, err := t.newSession()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to start terminal session")
		}
		t.session = sess
	}

	spin := startSpinner(os.Stderr, command)
	output, err := t.session.Execute(command)
	if err != nil {
		spin.stop(failGlyph)
		return nil, errors.Wrapf(err, "command execution failed")
	}
	spin.stop(okGlyph)

	if strings.TrimSpace(output) == "" {
		return "Command completed with no output.", nil
	}
	return output, nil
}

// Close tears down the terminal session if one was started.
func (t *ExecuteCommandTool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	err := t.session.Terminate()
	t.session = nil
	return err
}

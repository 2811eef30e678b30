// Package term drives a tmux session as a sandboxed, scriptable terminal.
//
// tmux gives no synchronous exit signal for keys sent into a pane, so
// command completion is detected with a marker protocol: each command is
// suffixed with "&& echo <random marker>" and the pane is polled until the
// marker shows up as output (not as the echoed input line). The pane
// scrollback is then captured and trimmed back to just the command's own
// output using the shell prompt fingerprint recorded at session start.
package term

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askterm/askterm/errors"
)

// Runner executes one tmux CLI invocation. It is the narrow port between
// the scraping logic and the external process, so the protocol can be
// unit-tested against synthetic pane content.
type Runner interface {
	Run(args ...string) (stdout, stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(args ...string) (string, string, error) {
	cmd := exec.Command("tmux", args...)
	var out, errOut strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err := cmd.Run()
	return out.String(), errOut.String(), err
}

// Session owns one tmux session for the lifetime of a run.
type Session struct {
	name          string
	promptPattern string
	runner        Runner
	created       bool

	pollInterval time.Duration
	maxAttempts  int
}

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultMaxAttempts  = 100

	// Fixed wide window so captured output wraps identically between polls.
	windowWidth = "1000"
)

// NewSession attaches to the tmux session of the given name, creating it if
// necessary, and records the shell prompt fingerprint used later to trim
// captured output.
func NewSession(name string) (*Session, error) {
	return newSession(name, execRunner{})
}

func newSession(name string, runner Runner) (*Session, error) {
	s := &Session{
		name:         name,
		runner:       runner,
		pollInterval: defaultPollInterval,
		maxAttempts:  defaultMaxAttempts,
	}
	if err := s.ensure(); err != nil {
		return nil, err
	}
	s.promptPattern = s.capturePromptPattern()
	return s, nil
}

// ensure makes the session exist. Inside an existing tmux client the current
// session is reused; otherwise the server is started and a detached session
// is created unless one of that name is already running.
func (s *Session) ensure() error {
	if os.Getenv("TMUX") != "" {
		return nil
	}

	// Start the server if it is not running yet; harmless otherwise.
	s.runner.Run("start-server")
	time.Sleep(100 * time.Millisecond)

	if _, _, err := s.runner.Run("has-session", "-t", s.name); err == nil {
		return nil
	}

	if _, stderr, err := s.runner.Run("new-session", "-d", "-s", s.name); err != nil {
		return errors.Wrapf(err, "failed to create tmux session %q: %s", s.name, strings.TrimSpace(stderr))
	}
	time.Sleep(200 * time.Millisecond)

	if _, _, err := s.runner.Run("has-session", "-t", s.name); err != nil {
		return errors.New("tmux session %q created but not found", s.name)
	}
	s.created = true
	return nil
}

// capturePromptPattern sends a blank newline and reads back the trailing
// pane line, which fingerprints the shell prompt. An empty fingerprint
// disables prompt trimming but is not an error.
func (s *Session) capturePromptPattern() string {
	s.runner.Run("send-keys", "-t", s.name, "", "Enter")

	for attempts := 0; attempts < s.maxAttempts; attempts++ {
		time.Sleep(10 * time.Millisecond)

		stdout, _, err := s.runner.Run("capture-pane", "-p", "-t", s.name)
		if err != nil {
			continue
		}
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		if last := lines[len(lines)-1]; strings.TrimSpace(last) != "" {
			return last
		}
	}
	return ""
}

// Execute runs one shell command in the session and returns its cleaned
// output. Completion is detected via the marker protocol described in the
// package comment; exceeding the poll budget yields a timeout error.
func (s *Session) Execute(command string) (string, error) {
	marker := fmt.Sprintf("__CMD_COMPLETE_%s__", uuid.NewString())
	full := fmt.Sprintf("%s && echo %s", command, marker)

	// Pin the window width so soft-wrapping is stable across captures, then
	// clear scrollback and screen so the capture holds only this command.
	s.runner.Run("set-option", "-g", "window-size", "manual")
	s.runner.Run("resize-window", "-t", s.name, "-x", windowWidth)
	s.runner.Run("clear-history", "-t", s.name)
	s.runner.Run("send-keys", "-t", s.name, "C-l")
	time.Sleep(100 * time.Millisecond)

	if _, _, err := s.runner.Run("send-keys", "-t", s.name, full, "Enter"); err != nil {
		return "", errors.Wrapf(err, "failed to send command to tmux session %q", s.name)
	}

	for attempts := 0; attempts < s.maxAttempts; attempts++ {
		time.Sleep(s.pollInterval)

		stdout, stderr, err := s.runner.Run("capture-pane", "-p", "-t", s.name)
		if err != nil {
			return "", errors.Wrapf(err, "tmux capture-pane failed")
		}

		if markerVisible(stdout, marker) {
			return s.captureCleanOutput(marker)
		}

		// A pane write error shows up on tmux's stderr before the marker
		// ever appears; surface it as the command output (fast fail).
		if msg := strings.TrimSpace(stderr); msg != "" {
			return msg, nil
		}
	}

	return "", errors.New("command timed out after %v", time.Duration(s.maxAttempts)*s.pollInterval)
}

// captureCleanOutput grabs the full pane scrollback and isolates the
// command's own output.
func (s *Session) captureCleanOutput(marker string) (string, error) {
	stdout, _, err := s.runner.Run("capture-pane", "-pJ", "-t", s.name, "-S", "-", "-E", "-")
	if err != nil {
		return "", errors.Wrapf(err, "tmux capture-pane failed")
	}
	return cleanOutput(stdout, marker, s.promptPattern), nil
}

// Terminate releases the terminal. A session this process created is killed
// outright; a pre-existing one only loses the pane that was borrowed.
func (s *Session) Terminate() error {
	var err error
	if s.created {
		_, _, err = s.runner.Run("kill-session", "-t", s.name)
	} else {
		_, _, err = s.runner.Run("kill-pane", "-t", s.name)
	}
	return errors.Wrapf(err, "failed to terminate tmux session %q", s.name)
}

// markerVisible reports whether some pane line carries the marker as command
// output. The echoed input line ("... echo <marker>") does not count; that
// is what distinguishes the command having finished from it merely having
// been typed.
func markerVisible(content, marker string) bool {
	echoed := "echo " + marker
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		if strings.Contains(line, marker) && !strings.Contains(line, echoed) {
			return true
		}
	}
	return false
}

// cleanOutput trims a captured pane buffer down to the command's own output.
// Scanning from the end: the marker line starts collection (stripped of the
// marker, kept only if something remains), non-empty lines are collected
// upward, and the first line matching the prompt fingerprint stops the scan.
// Collected lines are reversed back into forward order. A buffer with no
// marker line is already clean and comes back unchanged, which makes the
// function idempotent.
func cleanOutput(content, marker, promptPattern string) string {
	lines := strings.Split(content, "\n")
	echoed := "echo " + marker

	var collected []string
	collecting := false

scan:
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		switch {
		case strings.Contains(line, marker) && !strings.Contains(line, echoed):
			cleaned := strings.ReplaceAll(line, marker, "")
			if strings.TrimSpace(cleaned) != "" {
				collected = append(collected, cleaned)
			}
			collecting = true
		case collecting:
			// The prompt line and everything above it is discarded.
			if promptPattern != "" && strings.HasPrefix(line, promptPattern) {
				break scan
			}
			if strings.TrimSpace(line) != "" {
				collected = append(collected, line)
			}
		}
	}

	if !collecting {
		return content
	}

	for l, r := 0, len(collected)-1; l < r; l, r = l+1, r-1 {
		collected[l], collected[r] = collected[r], collected[l]
	}
	return strings.Join(collected, "\n")
}

// Package tools implements the actions the model can invoke: shell command
// execution inside a terminal session, filesystem access and web search.
package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/askterm/askterm/config"
	"github.com/askterm/askterm/llm"
	"github.com/askterm/askterm/session"
)

// Tool defines the interface for any action the agent can take. Execute
// returns the value handed back to the model; it may be a string or any
// JSON-serializable structure.
type Tool interface {
	Name() string
	Description() string
	Def() llm.ToolDef
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Registry holds all available tools.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds the registry for one run. The command tool is always
// present; web search only when a SearXNG endpoint is configured.
func NewRegistry(cfg *config.Config, approver Approver) *Registry {
	r := &Registry{tools: make(map[string]Tool)}

	r.Register(NewExecuteCommandTool(cfg.AllowedCommands, approver))
	r.Register(&ReadFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{fsAccess: &cfg.FilesystemAccess, approver: approver})
	if cfg.SearxBaseURL != "" {
		r.Register(NewWebSearchTool(cfg.SearxBaseURL))
	}

	return r
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Defs returns the tool declarations in registration order.
func (r *Registry) Defs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Def())
	}
	return defs
}

// Dispatch runs one tool call and always produces a result. Failures are
// folded into the result content so the model can react to them; they never
// abort the conversation.
func (r *Registry) Dispatch(ctx context.Context, call session.ToolCall) session.ToolCallResult {
	t, ok := r.tools[call.Name]
	if !ok {
		return session.ToolCallResult{Call: call, Content: fmt.Sprintf("Error: unknown tool '%s'", call.Name)}
	}

	out, err := t.Execute(ctx, call.Args)
	if err != nil {
		return session.ToolCallResult{Call: call, Content: fmt.Sprintf("Error: %v", err)}
	}
	return session.ToolCallResult{Call: call, Content: out}
}

// Close releases resources held by tools, such as the terminal session.
func (r *Registry) Close() error {
	var firstErr error
	for _, name := range r.order {
		if closer, ok := r.tools[name].(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks if a command is in the allowlist (with regex
// support). Invalid patterns fall back to exact string comparison.
func isCommandAllowed(command string, allowed []string) bool {
	if len(strings.Fields(command)) == 0 {
		return false
	}

	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// Package agent drives the conversation loop: user request in, streamed
// model output and tool execution rounds, final answer out.
package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/askterm/askterm/errors"
	"github.com/askterm/askterm/llm"
	"github.com/askterm/askterm/prompts"
	"github.com/askterm/askterm/session"
	"github.com/askterm/askterm/sysinfo"
	"github.com/askterm/askterm/tools"
)

// registry is the slice of tools.Registry the agent depends on, separated
// so tests can substitute a fake.
type registry interface {
	Dispatch(ctx context.Context, call session.ToolCall) session.ToolCallResult
	Close() error
}

type Agent struct {
	client llm.Client
	tools  registry
	host   sysinfo.Info
}

func New(client llm.Client, reg *tools.Registry) (*Agent, error) {
	host := sysinfo.Collect()

	systemPrompt, err := prompts.RenderSystem(prompts.Vars{
		UserOS:    host.OS,
		UserArch:  host.Arch,
		UserShell: host.Shell,
	})
	if err != nil {
		return nil, err
	}
	client.WithSystemPrompt(systemPrompt)

	return &Agent{client: client, tools: reg, host: host}, nil
}

// Run handles one user request to completion. Text deltas stream through
// onDelta while the model generates; the returned string is the final
// assistant answer. A provider failure is fatal for the run; tool failures
// are not, they flow back to the model as results.
func (a *Agent) Run(ctx context.Context, userInput string, onDelta func(string)) (string, error) {
	rendered, err := prompts.RenderUser(prompts.Vars{UserInput: userInput})
	if err != nil {
		return "", err
	}

	message := session.Message{Role: "user", Content: rendered}

	for {
		assistant, err := a.client.Chat(ctx, message, onDelta)
		if err != nil {
			return "", errors.Wrapf(err, "chat with %s failed", a.client.Name())
		}
		a.client.Append(*assistant)

		if len(assistant.ToolCalls) == 0 {
			return assistant.Content, nil
		}

		results := a.dispatchAll(ctx, assistant.ToolCalls)
		toolMessage, err := buildToolMessage(assistant.ToolCalls, results)
		if err != nil {
			return "", err
		}
		message = toolMessage
	}
}

// dispatchAll executes the calls of one assistant turn concurrently and
// returns their results in call order.
func (a *Agent) dispatchAll(ctx context.Context, calls []session.ToolCall) []session.ToolCallResult {
	results := make([]session.ToolCallResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call session.ToolCall) {
			defer wg.Done()
			results[i] = a.tools.Dispatch(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

// buildToolMessage serializes all results of one turn into a single
// tool-role message holding a JSON array.
func buildToolMessage(calls []session.ToolCall, results []session.ToolCallResult) (session.Message, error) {
	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return session.Message{}, errors.Wrapf(err, "failed to serialize tool results")
	}
	return session.Message{
		Role:      "tool",
		Content:   string(payload),
		ToolCalls: calls,
		Results:   results,
	}, nil
}

// Close releases tool resources, including the terminal session.
func (a *Agent) Close() error {
	return a.tools.Close()
}

package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/askterm/askterm/errors"
	"github.com/askterm/askterm/session"
)

// scriptedClient replays canned assistant turns and records what it was sent.
type scriptedClient struct {
	replies  []*session.Message
	received []session.Message
	appended []session.Message
	err      error
}

func (c *scriptedClient) Name() string                   { return "scripted" }
func (c *scriptedClient) Model() string                  { return "test" }
func (c *scriptedClient) WithSystemPrompt(prompt string) {}
func (c *scriptedClient) Append(message session.Message) { c.appended = append(c.appended, message) }

func (c *scriptedClient) Chat(ctx context.Context, message session.Message, onDelta func(string)) (*session.Message, error) {
	c.received = append(c.received, message)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.replies) == 0 {
		return &session.Message{Role: "assistant"}, nil
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	if onDelta != nil && reply.Content != "" {
		onDelta(reply.Content)
	}
	return reply, nil
}

// mapRegistry resolves tool calls against a function table.
type mapRegistry struct {
	handlers map[string]func(session.ToolCall) any
	closed   bool
}

func (r *mapRegistry) Dispatch(ctx context.Context, call session.ToolCall) session.ToolCallResult {
	if h, ok := r.handlers[call.Name]; ok {
		return session.ToolCallResult{Call: call, Content: h(call)}
	}
	return session.ToolCallResult{Call: call, Content: "Error: unknown tool"}
}

func (r *mapRegistry) Close() error {
	r.closed = true
	return nil
}

func TestRunExecutesToolRound(t *testing.T) {
	call := session.ToolCall{ID: "call_1", Name: "execute_command", Args: map[string]any{"command": "df -h"}}
	client := &scriptedClient{replies: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{call}},
		{Role: "assistant", Content: "Your disk is 40% full."},
	}}
	reg := &mapRegistry{handlers: map[string]func(session.ToolCall) any{
		"execute_command": func(session.ToolCall) any { return "/dev/sda1 40% /" },
	}}

	a := &Agent{client: client, tools: reg}
	answer, err := a.Run(context.Background(), "show me disk usage", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "Your disk is 40% full." {
		t.Errorf("answer = %q", answer)
	}

	if len(client.received) != 2 {
		t.Fatalf("chat rounds = %d, want 2", len(client.received))
	}
	toolMsg := client.received[1]
	if toolMsg.Role != "tool" {
		t.Errorf("second message role = %q", toolMsg.Role)
	}

	// The tool message content is one JSON array of call/result pairs.
	var parsed []map[string]any
	if err := json.Unmarshal([]byte(toolMsg.Content), &parsed); err != nil {
		t.Fatalf("tool content is not a JSON array: %v", err)
	}
	if len(parsed) != 1 || parsed[0]["content"] != "/dev/sda1 40% /" {
		t.Errorf("tool payload = %v", parsed)
	}
	if len(toolMsg.Results) != 1 || toolMsg.Results[0].Call.ID != "call_1" {
		t.Errorf("structured results = %+v", toolMsg.Results)
	}

	// Both assistant turns were recorded into the history.
	if len(client.appended) != 2 {
		t.Errorf("appended = %d, want 2", len(client.appended))
	}
}

func TestRunDispatchesConcurrentCallsInOrder(t *testing.T) {
	calls := []session.ToolCall{
		{ID: "a", Name: "slow"},
		{ID: "b", Name: "medium"},
		{ID: "c", Name: "fast"},
	}
	client := &scriptedClient{replies: []*session.Message{
		{Role: "assistant", ToolCalls: calls},
		{Role: "assistant", Content: "done"},
	}}

	var inFlight, peak int32
	track := func(d time.Duration, out string) func(session.ToolCall) any {
		return func(session.ToolCall) any {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(d)
			atomic.AddInt32(&inFlight, -1)
			return out
		}
	}
	reg := &mapRegistry{handlers: map[string]func(session.ToolCall) any{
		"slow":   track(30*time.Millisecond, "1"),
		"medium": track(15*time.Millisecond, "2"),
		"fast":   track(1*time.Millisecond, "3"),
	}}

	a := &Agent{client: client, tools: reg}
	if _, err := a.Run(context.Background(), "do three things", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	results := client.received[1].Results
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	// Results keep the call order regardless of completion order.
	for i, want := range []string{"1", "2", "3"} {
		if results[i].Content != want {
			t.Errorf("result[%d] = %v, want %s", i, results[i].Content, want)
		}
	}
	if atomic.LoadInt32(&peak) < 2 {
		t.Errorf("peak concurrency = %d, calls did not overlap", peak)
	}
}

func TestRunToolErrorIsNotFatal(t *testing.T) {
	call := session.ToolCall{ID: "x", Name: "missing"}
	client := &scriptedClient{replies: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{call}},
		{Role: "assistant", Content: "that tool does not exist"},
	}}
	reg := &mapRegistry{handlers: map[string]func(session.ToolCall) any{}}

	a := &Agent{client: client, tools: reg}
	answer, err := a.Run(context.Background(), "use a bad tool", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "that tool does not exist" {
		t.Errorf("answer = %q", answer)
	}
	if content, _ := client.received[1].Results[0].Content.(string); !strings.Contains(content, "Error") {
		t.Errorf("error not folded into result: %v", client.received[1].Results[0].Content)
	}
}

func TestRunProviderErrorIsFatal(t *testing.T) {
	client := &scriptedClient{err: errors.New("connection refused")}
	a := &Agent{client: client, tools: &mapRegistry{}}

	if _, err := a.Run(context.Background(), "hello", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunStreamsDeltas(t *testing.T) {
	client := &scriptedClient{replies: []*session.Message{
		{Role: "assistant", Content: "streamed answer"},
	}}
	a := &Agent{client: client, tools: &mapRegistry{}}

	var streamed string
	if _, err := a.Run(context.Background(), "hi", func(d string) { streamed += d }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if streamed != "streamed answer" {
		t.Errorf("streamed = %q", streamed)
	}
}

func TestCloseReleasesTools(t *testing.T) {
	reg := &mapRegistry{}
	a := &Agent{client: &scriptedClient{}, tools: reg}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !reg.closed {
		t.Error("registry not closed")
	}
}

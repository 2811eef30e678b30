package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/askterm/askterm/session"
)

func TestReplyRoundTrip(t *testing.T) {
	var reply Reply
	reply.AddContent("Checking ")
	reply.AddContent("disk usage.")
	reply.AddToolCalls(session.ToolCall{
		ID:   "call_1",
		Name: "execute_command",
		Args: map[string]any{"command": "df -h"},
	})

	msg := reply.Message()
	if msg.Role != "assistant" {
		t.Errorf("role = %q, want assistant", msg.Role)
	}
	if msg.Content != "Checking disk usage." {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.Name != "execute_command" || tc.Args["command"] != "df -h" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestReplyEmpty(t *testing.T) {
	var reply Reply
	msg := reply.Message()
	if msg.Content != "" || len(msg.ToolCalls) != 0 {
		t.Errorf("empty reply produced %+v", msg)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "watson"}, nil)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
}

func TestNewMissingAPIKey(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic", "gemini"} {
		_, err := New(context.Background(), Config{Provider: provider, Model: "m"}, nil)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s without key: expected *ConfigError, got %v", provider, err)
		}
	}
}

func TestConvertMessagesRejectsUnmarshalableArgs(t *testing.T) {
	history := []session.Message{{
		Role: "assistant",
		ToolCalls: []session.ToolCall{{
			ID:   "call_1",
			Name: "execute_command",
			Args: map[string]any{"command": func() {}},
		}},
	}}

	var invalidErr *InvalidRequestError
	if _, err := convertMessagesToOpenAI(history); !errors.As(err, &invalidErr) {
		t.Errorf("openai: expected *InvalidRequestError, got %v", err)
	}
	if _, _, err := convertMessagesToAnthropic(history); !errors.As(err, &invalidErr) {
		t.Errorf("anthropic: expected *InvalidRequestError, got %v", err)
	}
}

func TestResultText(t *testing.T) {
	if got := resultText("plain"); got != "plain" {
		t.Errorf("string passthrough = %q", got)
	}
	if got := resultText(map[string]any{"ok": true}); got != `{"ok":true}` {
		t.Errorf("map serialization = %q", got)
	}
}

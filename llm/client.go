// Package llm abstracts the supported model providers behind a single
// streaming chat interface. Each client owns the conversation history for
// one process run and converts between the internal message format and its
// provider's wire protocol.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/askterm/askterm/session"
)

// Config selects and parameterizes a provider. The zero value is invalid;
// Provider and usually an API key must be set.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// KeepAliveMinutes keeps the model loaded between requests. Ollama only.
	KeepAliveMinutes int
}

// Client is a conversation with one model provider. Implementations are not
// safe for concurrent use; the orchestrator drives them from a single
// goroutine.
type Client interface {
	// Name identifies the provider ("openai", "anthropic", ...).
	Name() string

	// Model reports the model identifier requests are sent with.
	Model() string

	// WithSystemPrompt seeds (or replaces) the system prompt in the history.
	WithSystemPrompt(prompt string)

	// Chat appends message to the history, sends the full history to the
	// provider, and streams the response. Text deltas are delivered through
	// onDelta as they arrive; the returned message is the fully accumulated
	// assistant turn, including any tool calls. The caller decides whether to
	// Append it.
	Chat(ctx context.Context, message session.Message, onDelta func(string)) (*session.Message, error)

	// Append records a message without sending anything.
	Append(message session.Message)
}

// ToolDef is a provider-neutral tool declaration. Each client converts it to
// its provider's native schema.
type ToolDef struct {
	Name        string
	Description string
	Properties  map[string]ToolProperty
	Required    []string
}

// ToolProperty describes one tool argument.
type ToolProperty struct {
	Type        string
	Description string
}

// Reply accumulates streamed response fragments into one assistant message.
// Providers feed it text deltas and tool calls in arrival order; Message
// yields the reconstructed turn.
type Reply struct {
	content   strings.Builder
	toolCalls []session.ToolCall
}

// AddContent appends a text delta.
func (r *Reply) AddContent(delta string) {
	r.content.WriteString(delta)
}

// AddToolCalls appends completed tool calls.
func (r *Reply) AddToolCalls(calls ...session.ToolCall) {
	r.toolCalls = append(r.toolCalls, calls...)
}

// Message returns the assistant message assembled so far.
func (r *Reply) Message() *session.Message {
	return &session.Message{
		Role:      "assistant",
		Content:   r.content.String(),
		ToolCalls: r.toolCalls,
	}
}

// ConfigError reports invalid or missing provider configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "llm config error: " + e.Reason
}

// NetworkError reports a transport failure before any response arrived.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "llm network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError reports a non-success response from the provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error: status %d: %s", e.Status, e.Body)
}

// InvalidRequestError reports a response the client could not interpret.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "llm invalid request: " + e.Reason
}

// resultText renders a tool result value as message text. Strings pass
// through untouched; anything else is serialized as JSON.
func resultText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// New builds the client for cfg.Provider with the given tool declarations.
func New(ctx context.Context, cfg Config, defs []ToolDef) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIClient(cfg, defs)
	case "anthropic":
		return newAnthropicClient(cfg, defs)
	case "ollama":
		return newOllamaClient(cfg, defs)
	case "gemini":
		return newGeminiClient(ctx, cfg, defs)
	case "bedrock":
		return newBedrockClient(ctx, cfg, defs)
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown provider %q (expected openai, anthropic, ollama, gemini or bedrock)", cfg.Provider)}
	}
}

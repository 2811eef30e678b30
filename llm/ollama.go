package llm

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/askterm/askterm/session"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// ollamaClient talks to a local or remote Ollama server.
type ollamaClient struct {
	client    *api.Client
	model     string
	tools     []api.Tool
	keepAlive *api.Duration
	history   session.History
}

func newOllamaClient(cfg Config, defs []ToolDef) (*ollamaClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ConfigError{Reason: "invalid ollama base url: " + err.Error()}
	}

	c := &ollamaClient{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  cfg.Model,
		tools:  convertToolDefsToOllama(defs),
	}
	if cfg.KeepAliveMinutes > 0 {
		c.keepAlive = &api.Duration{Duration: time.Duration(cfg.KeepAliveMinutes) * time.Minute}
	}
	return c, nil
}

func (o *ollamaClient) Name() string  { return "ollama" }
func (o *ollamaClient) Model() string { return o.model }

func (o *ollamaClient) WithSystemPrompt(prompt string) { o.history.SeedSystem(prompt) }
func (o *ollamaClient) Append(message session.Message) { o.history.Append(message) }

// Chat streams one turn. Ollama delivers both text fragments and completed
// tool calls through the same response callback.
func (o *ollamaClient) Chat(ctx context.Context, message session.Message, onDelta func(string)) (*session.Message, error) {
	o.history.Append(message)

	streaming := true
	req := &api.ChatRequest{
		Model:     o.model,
		Messages:  convertMessagesToOllama(o.history.Messages()),
		Tools:     o.tools,
		Stream:    &streaming,
		KeepAlive: o.keepAlive,
	}

	var reply Reply
	respFunc := func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			reply.AddContent(resp.Message.Content)
			if onDelta != nil {
				onDelta(resp.Message.Content)
			}
		}
		for _, tc := range resp.Message.ToolCalls {
			reply.AddToolCalls(session.ToolCall{
				Name: tc.Function.Name,
				Args: map[string]any(tc.Function.Arguments),
			})
		}
		return nil
	}

	if err := o.client.Chat(ctx, req, respFunc); err != nil {
		return nil, wrapOllamaError(err)
	}
	return reply.Message(), nil
}

func wrapOllamaError(err error) error {
	var statusErr api.StatusError
	if stderrors.As(err, &statusErr) {
		return &APIError{Status: statusErr.StatusCode, Body: statusErr.ErrorMessage}
	}
	return &NetworkError{Err: err}
}

func convertMessagesToOllama(messages []session.Message) []api.Message {
	var ollamaMessages []api.Message
	for _, msg := range messages {
		m := api.Message{Role: msg.Role, Content: msg.Content}
		if msg.Role == "assistant" {
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: api.ToolCallFunctionArguments(tc.Args),
					},
				})
			}
		}
		ollamaMessages = append(ollamaMessages, m)
	}
	return ollamaMessages
}

func convertToolDefsToOllama(defs []ToolDef) []api.Tool {
	if len(defs) == 0 {
		return nil
	}
	var ollamaTools []api.Tool
	for _, def := range defs {
		properties := make(map[string]api.ToolProperty, len(def.Properties))
		for name, prop := range def.Properties {
			properties[name] = api.ToolProperty{
				Type:        api.PropertyType{prop.Type},
				Description: prop.Description,
			}
		}
		ollamaTools = append(ollamaTools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       "object",
					Properties: properties,
					Required:   def.Required,
				},
			},
		})
	}
	return ollamaTools
}

package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/askterm/askterm/session"
)

// anthropicClient talks to the Anthropic Messages API.
type anthropicClient struct {
	client  *anthropic.Client
	model   string
	tools   []anthropic.ToolUnionParam
	history session.History
}

func newAnthropicClient(cfg Config, defs []ToolDef) (*anthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Reason: "anthropic api key not set"}
	}

	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(options...)
	return &anthropicClient{
		client: &client,
		model:  cfg.Model,
		tools:  convertToolDefsToAnthropic(defs),
	}, nil
}

func (a *anthropicClient) Name() string  { return "anthropic" }
func (a *anthropicClient) Model() string { return a.model }

func (a *anthropicClient) WithSystemPrompt(prompt string) { a.history.SeedSystem(prompt) }
func (a *anthropicClient) Append(message session.Message) { a.history.Append(message) }

// Chat streams one turn. Text deltas go to onDelta as they arrive; tool_use
// blocks are extracted from the accumulated message after the stream ends.
func (a *anthropicClient) Chat(ctx context.Context, message session.Message, onDelta func(string)) (*session.Message, error) {
	a.history.Append(message)

	anthropicMessages, systemPrompt, err := convertMessagesToAnthropic(a.history.Messages())
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  anthropicMessages,
		Tools:     a.tools,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	accumulated := anthropic.Message{}
	var reply Reply

	for stream.Next() {
		event := stream.Current()
		if err := accumulated.Accumulate(event); err != nil {
			return nil, &InvalidRequestError{Reason: fmt.Sprintf("cannot accumulate stream event: %v", err)}
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok {
				reply.AddContent(delta.Text)
				if onDelta != nil {
					onDelta(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, wrapAnthropicError(err)
	}

	for _, block := range accumulated.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		args := map[string]any{}
		if len(toolUse.Input) > 0 {
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return nil, &InvalidRequestError{Reason: fmt.Sprintf("unparseable input for tool %s: %v", toolUse.Name, err)}
			}
		}
		reply.AddToolCalls(session.ToolCall{
			ID:   toolUse.ID,
			Name: toolUse.Name,
			Args: args,
		})
	}

	return reply.Message(), nil
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		return &APIError{Status: apiErr.StatusCode, Body: apiErr.RawJSON()}
	}
	return &NetworkError{Err: err}
}

// convertMessagesToAnthropic maps the internal history onto Anthropic message
// params. The system prompt is carried separately; tool results become
// tool_result blocks inside a user message.
func convertMessagesToAnthropic(messages []session.Message) ([]anthropic.MessageParam, string, error) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: msg.Content},
				})
			}
			for _, tc := range msg.ToolCalls {
				argsBytes, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, "", &InvalidRequestError{Reason: fmt.Sprintf("cannot marshal input for tool call %s: %v", tc.Name, err)}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						Type:  "tool_use",
						ID:    tc.ID,
						Name:  tc.Name,
						Input: argsBytes,
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case "tool":
			var blocks []anthropic.ContentBlockParamUnion
			for _, res := range msg.Results {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: res.Call.ID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: resultText(res.Content)},
						}},
					},
				})
			}
			if len(blocks) == 0 && len(msg.ToolCalls) > 0 {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: msg.ToolCalls[0].ID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: msg.Content},
						}},
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: blocks,
			})
		}
	}

	return anthropicMessages, systemPrompt, nil
}

func convertToolDefsToAnthropic(defs []ToolDef) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	var anthropicTools []anthropic.ToolUnionParam
	for _, def := range defs {
		properties := map[string]any{}
		for name, prop := range def.Properties {
			properties[name] = map[string]any{
				"type":        prop.Type,
				"description": prop.Description,
			}
		}
		tool := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   def.Required,
			},
		}
		anthropicTools = append(anthropicTools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return anthropicTools
}

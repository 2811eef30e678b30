package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/askterm/askterm/session"
)

// openAIClient talks to the OpenAI Chat Completions API, or any compatible
// endpoint selected via BaseURL.
type openAIClient struct {
	client  *openai.Client
	model   string
	tools   []openai.ChatCompletionToolUnionParam
	history session.History
}

func newOpenAIClient(cfg Config, defs []ToolDef) (*openAIClient, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Reason: "openai api key not set"}
	}

	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	c := openai.NewClient(options...)
	// The &c is required, the SDK constructor returns a value.
	return &openAIClient{
		client: &c,
		model:  cfg.Model,
		tools:  convertToolDefsToOpenAI(defs),
	}, nil
}

func (o *openAIClient) Name() string  { return "openai" }
func (o *openAIClient) Model() string { return o.model }

func (o *openAIClient) WithSystemPrompt(prompt string) { o.history.SeedSystem(prompt) }
func (o *openAIClient) Append(message session.Message) { o.history.Append(message) }

// Chat streams one completion. Text arrives through onDelta as it is
// generated; tool calls are read from the accumulator once the stream ends
// because their arguments arrive fragmented across chunks.
func (o *openAIClient) Chat(ctx context.Context, message session.Message, onDelta func(string)) (*session.Message, error) {
	o.history.Append(message)

	chatMessages, err := convertMessagesToOpenAI(o.history.Messages())
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: chatMessages,
		Tools:    o.tools,
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}
	var reply Reply

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			delta := chunk.Choices[0].Delta.Content
			reply.AddContent(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, wrapOpenAIError(err)
	}

	if len(acc.Choices) > 0 {
		for _, tc := range acc.Choices[0].Message.ToolCalls {
			args := map[string]any{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					return nil, &InvalidRequestError{Reason: fmt.Sprintf("unparseable arguments for tool %s: %v", tc.Function.Name, err)}
				}
			}
			reply.AddToolCalls(session.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			})
		}
	}

	return reply.Message(), nil
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		return &APIError{Status: apiErr.StatusCode, Body: apiErr.RawJSON()}
	}
	return &NetworkError{Err: err}
}

// convertMessagesToOpenAI maps the internal history onto OpenAI's message
// union. Tool results are one message per originating call ID; that is the
// shape this API requires.
func convertMessagesToOpenAI(messages []session.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case "assistant":
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				argsBytes, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, &InvalidRequestError{Reason: fmt.Sprintf("cannot marshal arguments for tool call %s: %v", tc.Name, err)}
				}
				assistantMessage.ToolCalls = append(assistantMessage.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: string(argsBytes),
					},
				})
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case "tool":
			if len(msg.Results) > 0 {
				for _, res := range msg.Results {
					chatMessages = append(chatMessages, openai.ToolMessage(resultText(res.Content), res.Call.ID))
				}
			} else if len(msg.ToolCalls) > 0 {
				chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ID))
			}
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages, nil
}

func convertToolDefsToOpenAI(defs []ToolDef) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, def := range defs {
		properties := map[string]any{}
		for name, prop := range def.Properties {
			properties[name] = map[string]any{
				"type":        prop.Type,
				"description": prop.Description,
			}
		}
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": properties,
		}
		if len(def.Required) > 0 {
			params["required"] = def.Required
		}
		openAITools = append(openAITools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  params,
		}))
	}
	return openAITools
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/askterm/askterm/session"
)

// bedrockClient talks to Anthropic models hosted on AWS Bedrock. The request
// body follows the Anthropic messages schema; streaming events arrive as
// JSON chunks on the Bedrock response stream.
type bedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
	tools   []map[string]any
	history session.History
}

func newBedrockClient(ctx context.Context, cfg Config, defs []ToolDef) (*bedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, &ConfigError{Reason: "cannot load AWS config: " + err.Error()}
	}

	return &bedrockClient{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.Model,
		tools:   convertToolDefsToBedrock(defs),
	}, nil
}

func (b *bedrockClient) Name() string  { return "bedrock" }
func (b *bedrockClient) Model() string { return b.modelID }

func (b *bedrockClient) WithSystemPrompt(prompt string) { b.history.SeedSystem(prompt) }
func (b *bedrockClient) Append(message session.Message) { b.history.Append(message) }

// pendingToolUse accumulates one tool_use content block across streamed
// input_json_delta fragments.
type pendingToolUse struct {
	id   string
	name string
	args strings.Builder
}

func (b *bedrockClient) Chat(ctx context.Context, message session.Message, onDelta func(string)) (*session.Message, error) {
	b.history.Append(message)

	body, err := b.requestBody()
	if err != nil {
		return nil, &InvalidRequestError{Reason: "cannot build request body: " + err.Error()}
	}

	resp, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	stream := resp.GetStream()
	defer stream.Close()

	var reply Reply
	pending := map[int]*pendingToolUse{}

	for event := range stream.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		if err := b.consumeChunk(chunk.Value.Bytes, &reply, pending, onDelta); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, &NetworkError{Err: err}
	}

	return reply.Message(), nil
}

// consumeChunk applies one Anthropic streaming event to the reply under
// construction.
func (b *bedrockClient) consumeChunk(raw []byte, reply *Reply, pending map[int]*pendingToolUse, onDelta func(string)) error {
	var event struct {
		Type  string `json:"type"`
		Index int    `json:"index"`

		ContentBlock struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"content_block"`

		Delta struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			PartialJSON string `json:"partial_json"`
		} `json:"delta"`

		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return &InvalidRequestError{Reason: "unparseable stream chunk: " + err.Error()}
	}

	switch event.Type {
	case "content_block_start":
		if event.ContentBlock.Type == "tool_use" {
			pending[event.Index] = &pendingToolUse{
				id:   event.ContentBlock.ID,
				name: event.ContentBlock.Name,
			}
		}
	case "content_block_delta":
		switch event.Delta.Type {
		case "text_delta":
			reply.AddContent(event.Delta.Text)
			if onDelta != nil {
				onDelta(event.Delta.Text)
			}
		case "input_json_delta":
			if p, ok := pending[event.Index]; ok {
				p.args.WriteString(event.Delta.PartialJSON)
			}
		}
	case "content_block_stop":
		p, ok := pending[event.Index]
		if !ok {
			return nil
		}
		delete(pending, event.Index)

		args := map[string]any{}
		if raw := p.args.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return &InvalidRequestError{Reason: fmt.Sprintf("unparseable input for tool %s: %v", p.name, err)}
			}
		}
		reply.AddToolCalls(session.ToolCall{ID: p.id, Name: p.name, Args: args})
	case "error":
		return &APIError{Status: 0, Body: event.Error.Message}
	}
	return nil
}

// requestBody serializes the history into the Bedrock Anthropic schema.
func (b *bedrockClient) requestBody() ([]byte, error) {
	messages, systemPrompt := convertMessagesToBedrock(b.history.Messages())

	request := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          messages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(b.tools) > 0 {
		request["tools"] = b.tools
	}

	return json.Marshal(request)
}

func convertMessagesToBedrock(messages []session.Message) ([]map[string]any, string) {
	var bedrockMessages []map[string]any
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			bedrockMessages = append(bedrockMessages, map[string]any{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": msg.Content},
				},
			})
		case "assistant":
			var blocks []map[string]any
			if msg.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": tc.Args,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			bedrockMessages = append(bedrockMessages, map[string]any{
				"role":    "assistant",
				"content": blocks,
			})
		case "tool":
			var blocks []map[string]any
			for _, res := range msg.Results {
				blocks = append(blocks, map[string]any{
					"type":        "tool_result",
					"tool_use_id": res.Call.ID,
					"content":     resultText(res.Content),
				})
			}
			if len(blocks) == 0 && len(msg.ToolCalls) > 0 {
				blocks = append(blocks, map[string]any{
					"type":        "tool_result",
					"tool_use_id": msg.ToolCalls[0].ID,
					"content":     msg.Content,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			bedrockMessages = append(bedrockMessages, map[string]any{
				"role":    "user",
				"content": blocks,
			})
		}
	}

	return bedrockMessages, systemPrompt
}

func convertToolDefsToBedrock(defs []ToolDef) []map[string]any {
	if len(defs) == 0 {
		return nil
	}
	var bedrockTools []map[string]any
	for _, def := range defs {
		properties := map[string]any{}
		for name, prop := range def.Properties {
			properties[name] = map[string]any{
				"type":        prop.Type,
				"description": prop.Description,
			}
		}
		schema := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(def.Required) > 0 {
			schema["required"] = def.Required
		}
		bedrockTools = append(bedrockTools, map[string]any{
			"name":         def.Name,
			"description":  def.Description,
			"input_schema": schema,
		})
	}
	return bedrockTools
}

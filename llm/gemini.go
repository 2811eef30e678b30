package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/askterm/askterm/session"
)

// geminiClient talks to the Google Gemini API.
type geminiClient struct {
	model   *genai.GenerativeModel
	name    string
	history session.History
}

func newGeminiClient(ctx context.Context, cfg Config, defs []ToolDef) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigError{Reason: "gemini api key not set"}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	model := client.GenerativeModel(cfg.Model)
	model.Tools = convertToolDefsToGemini(defs)

	return &geminiClient{
		model: model,
		name:  cfg.Model,
	}, nil
}

func (g *geminiClient) Name() string  { return "gemini" }
func (g *geminiClient) Model() string { return g.name }

func (g *geminiClient) WithSystemPrompt(prompt string) {
	g.history.SeedSystem(prompt)
	g.model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompt)},
	}
}

func (g *geminiClient) Append(message session.Message) { g.history.Append(message) }

// Chat streams one turn. The history minus the newest message is replayed as
// chat session history; the newest message's parts are the prompt.
func (g *geminiClient) Chat(ctx context.Context, message session.Message, onDelta func(string)) (*session.Message, error) {
	g.history.Append(message)

	contents := convertMessagesToGemini(g.history.Messages())
	if len(contents) == 0 {
		return nil, &InvalidRequestError{Reason: "no sendable messages in history"}
	}
	last := contents[len(contents)-1]

	chatSession := g.model.StartChat()
	chatSession.History = contents[:len(contents)-1]

	iter := chatSession.SendMessageStream(ctx, last.Parts...)
	var reply Reply
	toolCallCounter := 0

	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, &NetworkError{Err: err}
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				reply.AddContent(string(v))
				if onDelta != nil {
					onDelta(string(v))
				}
			case genai.FunctionCall:
				// Gemini does not assign call IDs; synthesize stable ones.
				reply.AddToolCalls(session.ToolCall{
					ID:   fmt.Sprintf("call_%d_%s", toolCallCounter, v.Name),
					Name: v.Name,
					Args: v.Args,
				})
				toolCallCounter++
			}
		}
	}

	return reply.Message(), nil
}

// convertMessagesToGemini maps the internal history onto Gemini content.
// The system message is excluded; it travels as the model's system
// instruction. Tool results become FunctionResponse parts.
func convertMessagesToGemini(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "assistant":
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case "tool":
			var parts []genai.Part
			for _, res := range msg.Results {
				parts = append(parts, genai.FunctionResponse{
					Name:     res.Call.Name,
					Response: map[string]any{"content": res.Content},
				})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.Text(msg.Content))
			}
			contents = append(contents, &genai.Content{Role: "function", Parts: parts})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	return contents
}

func convertToolDefsToGemini(defs []ToolDef) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, def := range defs {
		properties := make(map[string]*genai.Schema, len(def.Properties))
		for name, prop := range def.Properties {
			properties[name] = &genai.Schema{
				Type:        geminiType(prop.Type),
				Description: prop.Description,
			}
		}
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   def.Required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

func geminiType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

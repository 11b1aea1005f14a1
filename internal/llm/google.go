// ABOUTME: Google Gemini chat model over the Gen AI SDK
// ABOUTME: Streams via the Go 1.23 iterator API, surfacing function calls as tool events

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

type googleModel struct {
	client *genai.Client
	name   string
	info   ModelInfo
}

func newGoogleModel(ctx context.Context, name, apiKey string) (*googleModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: creating client: %w", err)
	}
	return &googleModel{
		client: client,
		name:   name,
		info:   Lookup(ProviderGoogle, name),
	}, nil
}

func (m *googleModel) Provider() string    { return ProviderGoogle }
func (m *googleModel) Name() string        { return m.name }
func (m *googleModel) SupportsTools() bool { return m.info.SupportsTools }

func (m *googleModel) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	contents := convertGoogleMessages(req.Messages)
	config := m.buildConfig(req)

	events := make(chan Event)
	go func() {
		defer close(events)

		err := retryStream(ctx, func(emitted *bool) error {
			return m.streamOnce(ctx, contents, config, events, emitted)
		})
		if err != nil {
			events <- Event{Err: fmt.Errorf("google: %w", err)}
			return
		}
		events <- Event{Done: true}
	}()
	return events, nil
}

func (m *googleModel) Generate(ctx context.Context, req *Request) (string, error) {
	return collectText(ctx, m, req)
}

func (m *googleModel) streamOnce(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig, events chan<- Event, emitted *bool) error {
	for resp, err := range m.client.Models.GenerateContentStream(ctx, m.name, contents, config) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					*emitted = true
					events <- Event{Text: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					*emitted = true
					events <- Event{ToolCall: &ToolCall{
						// Gemini doesn't assign call IDs; synthesize one
						ID:    part.FunctionCall.Name + "-" + uuid.NewString()[:8],
						Name:  part.FunctionCall.Name,
						Input: argsJSON,
					}}
				}
			}
		}
	}

	return nil
}

func (m *googleModel) buildConfig(req *Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 && m.SupportsTools() {
		config.Tools = convertGoogleTools(req.Tools)
	}

	return config
}

func convertGoogleMessages(messages []Message) []*genai.Content {
	var result []*genai.Content

	for _, msg := range messages {
		content := &genai.Content{}
		if msg.Role == "assistant" {
			content.Role = genai.RoleModel
		} else {
			content.Role = genai.RoleUser
		}

		if msg.Text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Text})
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Input, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		for _, tr := range msg.ToolResults {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     tr.Name,
					Response: map[string]any{"output": tr.Content},
				},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result
}

func convertGoogleTools(tools []ToolDef) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGoogleSchema(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGoogleSchema converts a JSON Schema map into Gemini's Schema type.
// Only the subset the tool loaders produce is handled.
func toGoogleSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGoogleSchema(propMap)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGoogleSchema(items)
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	return schema
}

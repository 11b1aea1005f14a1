// ABOUTME: Anthropic chat model over the official SDK
// ABOUTME: Accumulates tool input JSON deltas across content block events

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

type anthropicModel struct {
	client anthropic.Client
	name   string
	info   ModelInfo
}

func newAnthropicModel(name, apiKey string) *anthropicModel {
	return &anthropicModel{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		name:   name,
		info:   Lookup(ProviderAnthropic, name),
	}
}

func (m *anthropicModel) Provider() string    { return ProviderAnthropic }
func (m *anthropicModel) Name() string        { return m.name }
func (m *anthropicModel) SupportsTools() bool { return m.info.SupportsTools }

func (m *anthropicModel) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	params, err := m.buildParams(req)
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)

		err := retryStream(ctx, func(emitted *bool) error {
			return m.streamOnce(ctx, params, events, emitted)
		})
		if err != nil {
			events <- Event{Err: fmt.Errorf("anthropic: %w", err)}
		}
	}()
	return events, nil
}

func (m *anthropicModel) Generate(ctx context.Context, req *Request) (string, error) {
	return collectText(ctx, m, req)
}

func (m *anthropicModel) streamOnce(ctx context.Context, params anthropic.MessageNewParams, events chan<- Event, emitted *bool) error {
	stream := m.client.Messages.NewStreaming(ctx, params)

	var currentToolCall *ToolCall
	var currentToolInput strings.Builder
	var usage Usage

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			usage.InputTokens = int(messageStart.Message.Usage.InputTokens)

		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			if contentBlock.Type == "tool_use" {
				toolUse := contentBlock.AsToolUse()
				currentToolCall = &ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					*emitted = true
					events <- Event{Text: delta.Text}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				input := currentToolInput.String()
				if input == "" {
					input = "{}"
				}
				currentToolCall.Input = json.RawMessage(input)
				*emitted = true
				events <- Event{ToolCall: currentToolCall}
				currentToolCall = nil
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(messageDelta.Usage.OutputTokens)
			}

		case "message_stop":
			*emitted = true
			events <- Event{Done: true, Usage: &usage}
			return nil
		}
	}

	if err := stream.Err(); err != nil {
		return err
	}

	*emitted = true
	events <- Event{Done: true, Usage: &usage}
	return nil
}

func (m *anthropicModel) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.name),
		Messages:  convertAnthropicMessages(req.Messages),
		MaxTokens: int64(maxTokens),
	}

	// System prompt is separate from messages in the Anthropic API
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if len(req.Tools) > 0 && m.SupportsTools() {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	return params, nil
}

func convertAnthropicMessages(messages []Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		if msg.Text != "" {
			content = append(content, anthropic.NewTextBlock(msg.Text))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			// User and tool roles both map to user messages
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result
}

func convertAnthropicTools(tools []ToolDef) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}

	return result, nil
}

// ABOUTME: OpenAI-compatible chat model: openai, xai, openrouter and ollama
// ABOUTME: Streams one assistant step, accumulating tool call argument deltas

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Base URLs for the OpenAI-compatible providers
const (
	xaiBaseURL        = "https://api.x.ai/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

type openAIModel struct {
	client   *openai.Client
	provider string
	name     string
	info     ModelInfo
}

// newOpenAIModel builds a model handle for any OpenAI-compatible
// provider. baseURL is empty for openai itself.
func newOpenAIModel(provider, name, apiKey, baseURL string) *openAIModel {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIModel{
		client:   openai.NewClientWithConfig(cfg),
		provider: provider,
		name:     name,
		info:     Lookup(provider, name),
	}
}

func (m *openAIModel) Provider() string    { return m.provider }
func (m *openAIModel) Name() string        { return m.name }
func (m *openAIModel) SupportsTools() bool { return m.info.SupportsTools }

func (m *openAIModel) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    m.name,
		Messages: convertOpenAIMessages(req),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 && m.SupportsTools() {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err := withRetry(ctx, func() error {
		var err error
		stream, err = m.client.CreateChatCompletionStream(ctx, chatReq)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: creating stream: %w", m.provider, err)
	}

	events := make(chan Event)
	go m.processStream(ctx, stream, events)
	return events, nil
}

func (m *openAIModel) Generate(ctx context.Context, req *Request) (string, error) {
	return collectText(ctx, m, req)
}

func (m *openAIModel) processStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- Event) {
	defer close(events)
	defer stream.Close()

	// Tool call argument fragments arrive across many deltas, keyed by index
	toolCalls := make(map[int]*ToolCall)
	argBuffers := make(map[int]*strings.Builder)
	var usage *Usage

	flushToolCalls := func() {
		for i := 0; i < len(toolCalls); i++ {
			tc, ok := toolCalls[i]
			if !ok || tc.ID == "" || tc.Name == "" {
				continue
			}
			args := argBuffers[i].String()
			if args == "" {
				args = "{}"
			}
			tc.Input = json.RawMessage(args)
			events <- Event{ToolCall: tc}
		}
		toolCalls = make(map[int]*ToolCall)
		argBuffers = make(map[int]*strings.Builder)
	}

	for {
		select {
		case <-ctx.Done():
			events <- Event{Err: ctx.Err()}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flushToolCalls()
				events <- Event{Done: true, Usage: usage}
				return
			}
			events <- Event{Err: fmt.Errorf("%s: stream: %w", m.provider, err)}
			return
		}

		if response.Usage != nil {
			usage = &Usage{
				InputTokens:  response.Usage.PromptTokens,
				OutputTokens: response.Usage.CompletionTokens,
			}
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			events <- Event{Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &ToolCall{}
				argBuffers[index] = &strings.Builder{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				argBuffers[index].WriteString(tc.Function.Arguments)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flushToolCalls()
		}
	}
}

// convertOpenAIMessages maps the neutral request into the OpenAI wire
// format. The system prompt becomes the leading message.
func convertOpenAIMessages(req *Request) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage

	if req.System != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Text,
			}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, oaiMsg)

		case "tool":
			// One message per result, linked by tool call ID
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Text,
			})
		}
	}

	return result
}

func convertOpenAITools(tools []ToolDef) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var params any
		if err := json.Unmarshal(tool.InputSchema, &params); err != nil || params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

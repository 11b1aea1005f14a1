// ABOUTME: Core types for the model invocation layer
// ABOUTME: Defines Request/Event shapes and the Model interface providers implement

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Layer errors
var (
	// ErrNoCredential means neither a vault record nor a process default
	// exists for the provider.
	ErrNoCredential = errors.New("no credential for provider")
	// ErrUnknownProvider means the provider name has no catalog entry
	ErrUnknownProvider = errors.New("unknown provider")
)

// ToolCall is a model's request to execute one tool
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the outcome of an executed tool call, fed back to the model
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool
}

// Message is one turn element in provider-neutral form
type Message struct {
	Role        string // "user", "assistant" or "tool"
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolDef describes one callable tool offered to the model
type ToolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is a single model invocation: one assistant step of a turn
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolDef
	MaxTokens int
}

// Usage reports token counts when the provider surfaces them
type Usage struct {
	InputTokens  int `json:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty"`
}

// Event is one element of a model's response stream.
// Exactly one of Text, ToolCall, Err is meaningful per event; Done
// carries final Usage when available.
type Event struct {
	Text     string
	ToolCall *ToolCall
	Done     bool
	Usage    *Usage
	Err      error
}

// Model is a resolved, credentialed handle on one provider model
type Model interface {
	Provider() string
	Name() string
	SupportsTools() bool
	// Stream runs one assistant step, emitting events until Done or Err.
	// The returned channel is closed by the provider.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
	// Generate runs one non-streaming completion and returns the text
	Generate(ctx context.Context, req *Request) (string, error)
}

// collectText drains a model stream into a single string. Providers use
// it to back Generate with their Stream implementation.
func collectText(ctx context.Context, m Model, req *Request) (string, error) {
	events, err := m.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for ev := range events {
		if ev.Err != nil {
			return "", ev.Err
		}
		sb.WriteString(ev.Text)
	}
	return sb.String(), nil
}

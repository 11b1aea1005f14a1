// ABOUTME: Turn event types streamed back to the chat client
// ABOUTME: Text deltas, tool lifecycle events and the terminal finish/error

package conversation

import (
	"encoding/json"

	"github.com/Bakhitov/crafty-gateway/internal/llm"
)

// Event types emitted over a turn stream
const (
	EventText       = "text"        // incremental text delta
	EventImage      = "image"       // one complete data-URI markdown part
	EventToolCall   = "tool_call"   // the model requested a tool
	EventToolResult = "tool_result" // a tool finished executing
	EventFinish     = "finish"      // terminal: turn completed
	EventError      = "error"       // terminal: turn failed
)

// Event is one element of a turn's output stream. Exactly one terminal
// event (finish or error) closes every stream.
type Event struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
	Usage      *llm.Usage      `json:"usage,omitempty"`
	Error      string          `json:"error,omitempty"`
}

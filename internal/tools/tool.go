// ABOUTME: Tool descriptor and turn-scoped credential slot
// ABOUTME: Tools are ephemeral per-turn values and are never persisted

package tools

import (
	"context"
	"encoding/json"
	"sync"
)

// Tool sources
const (
	SourceMCP      = "mcp"
	SourceWorkflow = "workflow"
	SourceApp      = "app"
)

// ExecuteFunc runs a tool and returns its textual output
type ExecuteFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Tool describes one callable tool assembled for a turn. Execute is nil
// when execution has been stripped for manual mode.
type Tool struct {
	Name        string
	Source      string
	ServerName  string // mcp: which plugin server it came from
	OriginName  string // mcp: the tool's name on that server
	WorkflowID  string // workflow: owning workflow id
	Description string
	InputSchema json.RawMessage
	Execute     ExecuteFunc
}

// StripExecution returns copies of the tools with Execute removed from
// plugin-server and workflow tools, for manual mode where the client
// runs those itself. Built-in tools keep their handlers: the client has
// no way to execute them, so the gateway still does.
func StripExecution(ts []Tool) []Tool {
	stripped := make([]Tool, len(ts))
	for i, t := range ts {
		stripped[i] = t
		if t.Source != SourceApp {
			stripped[i].Execute = nil
		}
	}
	return stripped
}

// CredentialSlot holds one credential for the duration of a turn. The
// orchestrator fills it before tool construction and clears it in a
// defer on every exit path, so the value never outlives the turn.
type CredentialSlot struct {
	mu    sync.RWMutex
	value string
}

// Set stores the credential for this turn
func (s *CredentialSlot) Set(value string) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

// Get returns the current credential, empty when unset or cleared
func (s *CredentialSlot) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Clear wipes the credential
func (s *CredentialSlot) Clear() {
	s.mu.Lock()
	s.value = ""
	s.mu.Unlock()
}

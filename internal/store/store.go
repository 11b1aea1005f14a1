// ABOUTME: Store interface and data types for crafty-gateway persistence
// ABOUTME: Defines Thread, Message, Agent, Connection structs and the Store interface

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateThread is returned when trying to create a thread that already exists
var ErrDuplicateThread = errors.New("thread already exists")

// Thread represents a conversation thread owned by a user
type Thread struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Part types within a message
const (
	PartTypeText      = "text"
	PartTypeTool      = "tool"
	PartTypeFile      = "file"
	PartTypeReasoning = "reasoning"
	PartTypeStepStart = "step-start"
)

// Tool part states
const (
	ToolStateInputAvailable  = "input-available"
	ToolStateOutputAvailable = "output-available"
	ToolStateOutputError     = "output-error"
)

// Part is one ordered segment of a message: text, a tool call with its
// input and output, an attached file, or a stream structure marker.
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	URL        string          `json:"url,omitempty"`
	Filename   string          `json:"filename,omitempty"`
	MediaType  string          `json:"mediaType,omitempty"`
}

// MessageMetadata carries per-message generation context
type MessageMetadata struct {
	Provider   string          `json:"provider,omitempty"`
	Model      string          `json:"model,omitempty"`
	AgentID    string          `json:"agentId,omitempty"`
	ToolChoice string          `json:"toolChoice,omitempty"`
	ToolCount  int             `json:"toolCount,omitempty"`
	Usage      json.RawMessage `json:"usage,omitempty"`
}

// Message represents a single message within a thread.
// Parts hold the ordered content; saving an existing ID replaces the row.
type Message struct {
	ID        string
	ThreadID  string
	Role      string
	Parts     []Part
	Metadata  *MessageMetadata
	CreatedAt time.Time
}

// AgentInstructions is the prompt contract an agent carries
type AgentInstructions struct {
	Role         string   `json:"role,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Mentions     []string `json:"mentions,omitempty"`
}

// Agent represents a configured conversational agent
type Agent struct {
	ID           string
	UserID       string
	Name         string
	Instructions AgentInstructions
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Connection types
const (
	ConnectionTypeEvolution = "whatsapp_evolution"
	ConnectionTypeChatwoot  = "chatwoot_channel"
)

// Canonical connection statuses
const (
	StatusConnecting = "connecting"
	StatusQRRequired = "qr_required"
	StatusOpen       = "open"
	StatusClose      = "close"
	StatusError      = "error"
)

// Connection represents a link to an external messaging bridge.
// ProviderMetadata accumulates additively; status writes replace the
// status column only.
type Connection struct {
	ID                    string
	UserID                string
	Type                  string
	DisplayName           string
	Status                string
	EvolutionInstanceName string
	EvolutionAPIKey       string
	ChatwootAccountID     string
	ChatwootInboxID       string
	ProviderMetadata      map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ChannelAgentMap binds one inbox to an agent for a user
type ChannelAgentMap struct {
	UserID    string
	InboxID   string
	AgentID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Secret is one sealed credential record for a (user, provider) pair.
// At most one record per pair is active.
type Secret struct {
	ID        string
	UserID    string
	Provider  string
	Cipher    string
	IV        string
	Tag       string
	Version   string
	Label     string
	BaseURL   string
	Scopes    []string
	ExpiresAt *time.Time
	IsActive  bool
	CreatedAt time.Time
}

// Store defines the interface for crafty-gateway persistence
type Store interface {
	// Threads
	CreateThread(ctx context.Context, thread *Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	ListThreads(ctx context.Context, userID string) ([]*Thread, error)
	DeleteThread(ctx context.Context, id string) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetThreadMessages(ctx context.Context, threadID string, limit int) ([]*Message, error)

	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context, userID string) ([]*Agent, error)
	UpdateAgent(ctx context.Context, agent *Agent) error
	TouchAgent(ctx context.Context, id string) error
	DeleteAgent(ctx context.Context, id string) error

	// Connections
	CreateConnection(ctx context.Context, conn *Connection) error
	GetConnection(ctx context.Context, id string) (*Connection, error)
	GetConnectionByInstanceName(ctx context.Context, name string) (*Connection, error)
	GetConnectionByInboxID(ctx context.Context, userID, inboxID string) (*Connection, error)
	ListConnections(ctx context.Context, userID string) ([]*Connection, error)
	ListConnectionsByType(ctx context.Context, connType string) ([]*Connection, error)
	UpdateConnectionStatus(ctx context.Context, id, status string) error
	UpdateConnectionDisplayName(ctx context.Context, id, displayName string) error
	MergeConnectionMetadata(ctx context.Context, id string, patch map[string]any) error
	DeleteConnection(ctx context.Context, id string) error

	// Channel agent maps
	UpsertChannelAgentMap(ctx context.Context, m *ChannelAgentMap) error
	GetChannelAgentMap(ctx context.Context, userID, inboxID string) (*ChannelAgentMap, error)
	DeleteChannelAgentMap(ctx context.Context, userID, inboxID string) error

	// Secrets
	SaveSecret(ctx context.Context, secret *Secret) error
	GetActiveSecret(ctx context.Context, userID, provider string) (*Secret, error)
	ListSecrets(ctx context.Context, userID string) ([]*Secret, error)
	DeleteSecret(ctx context.Context, id string) error

	// Close closes the store
	Close() error
}

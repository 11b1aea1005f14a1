// ABOUTME: ToolRegistry: assembles the per-turn tool set from three loaders
// ABOUTME: Loaders run concurrently and fail open; generation waits for all

package tools

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Bakhitov/crafty-gateway/internal/config"
)

// Tool choice modes gate which tools a turn carries
const (
	ChoiceAuto   = "auto"   // all tools, gateway executes
	ChoiceNone   = "none"   // no tools at all
	ChoiceManual = "manual" // descriptors only, client executes
)

// LoadOptions select and shape the tool set for one turn
type LoadOptions struct {
	UserID string
	// ToolChoice is one of ChoiceAuto, ChoiceNone, ChoiceManual.
	// Anything else is treated as auto.
	ToolChoice string
	// SearchKey is the turn-scoped slot the web search tool reads
	SearchKey *CredentialSlot
}

// Registry assembles tools from plugin servers, workflows and built-ins
type Registry struct {
	mcpServers []config.MCPServerConfig
	workflows  WorkflowSource
	searchURL  string
	logger     *slog.Logger
}

// NewRegistry creates a tool registry. workflows may be nil.
func NewRegistry(mcpServers []config.MCPServerConfig, workflows WorkflowSource) *Registry {
	return &Registry{
		mcpServers: mcpServers,
		workflows:  workflows,
		logger:     slog.Default().With("component", "tools"),
	}
}

// Load runs the three loaders concurrently and returns the merged tool
// set once all have settled. Individual loader failures yield fewer
// tools, never an error.
func (r *Registry) Load(ctx context.Context, opts LoadOptions) []Tool {
	if opts.ToolChoice == ChoiceNone {
		return nil
	}

	searchKey := opts.SearchKey
	if searchKey == nil {
		searchKey = &CredentialSlot{}
	}

	var (
		wg            sync.WaitGroup
		mcpTools      []Tool
		workflowTools []Tool
		builtinTools  []Tool
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		mcpTools = newMCPLoader(r.mcpServers, r.logger).Load(ctx)
	}()
	go func() {
		defer wg.Done()
		workflowTools = newWorkflowLoader(r.workflows, r.logger).Load(ctx, opts.UserID)
	}()
	go func() {
		defer wg.Done()
		builtinTools = newBuiltinLoader(searchKey, r.searchURL).Load()
	}()
	wg.Wait()

	merged := make([]Tool, 0, len(mcpTools)+len(workflowTools)+len(builtinTools))
	merged = append(merged, mcpTools...)
	merged = append(merged, workflowTools...)
	merged = append(merged, builtinTools...)

	if opts.ToolChoice == ChoiceManual {
		merged = StripExecution(merged)
	}

	r.logger.Debug("assembled tool set",
		"mcp", len(mcpTools), "workflow", len(workflowTools), "builtin", len(builtinTools),
		"choice", opts.ToolChoice)
	return merged
}

// FindByName returns the tool with the given name, or nil
func FindByName(ts []Tool, name string) *Tool {
	for i := range ts {
		if ts[i].Name == name {
			return &ts[i]
		}
	}
	return nil
}

// ABOUTME: Tests for tool set assembly and gating
// ABOUTME: Covers fail-open loading, choice modes and execution stripping

package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bakhitov/crafty-gateway/internal/config"
)

func TestRegistry_BuiltinsAlwaysPresent(t *testing.T) {
	r := NewRegistry(nil, nil)

	ts := r.Load(context.Background(), LoadOptions{UserID: "user-1"})

	require.NotNil(t, FindByName(ts, "web_search"))
	require.NotNil(t, FindByName(ts, "echo"))
}

func TestRegistry_ChoiceNone(t *testing.T) {
	r := NewRegistry(nil, StaticWorkflowSource{
		{ID: "wf-1", Name: "ping", Description: "ping"},
	})

	ts := r.Load(context.Background(), LoadOptions{UserID: "user-1", ToolChoice: ChoiceNone})
	assert.Empty(t, ts)
}

func TestRegistry_ManualStripsClientExecutableTools(t *testing.T) {
	r := NewRegistry(nil, StaticWorkflowSource{
		{ID: "wf-1", Name: "fetch_status", Description: "Fetch service status"},
	})

	ts := r.Load(context.Background(), LoadOptions{UserID: "user-1", ToolChoice: ChoiceManual})
	require.NotEmpty(t, ts)

	wf := FindByName(ts, "fetch_status")
	require.NotNil(t, wf)
	assert.Nil(t, wf.Execute, "workflow tools run on the client in manual mode")

	for _, tool := range ts {
		assert.NotEmpty(t, tool.Name)
		assert.NotEmpty(t, tool.InputSchema)
		if tool.Source != SourceApp {
			assert.Nil(t, tool.Execute, tool.Name)
		}
	}
}

func TestRegistry_ManualKeepsBuiltinsExecutable(t *testing.T) {
	r := NewRegistry(nil, nil)

	ts := r.Load(context.Background(), LoadOptions{UserID: "user-1", ToolChoice: ChoiceManual})
	for _, name := range []string{"echo", "web_search"} {
		tool := FindByName(ts, name)
		require.NotNil(t, tool)
		assert.NotNil(t, tool.Execute, "builtin tool lost its execution handler in manual mode")
	}
}

func TestRegistry_UnreachablePluginServerFailsOpen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r := NewRegistry([]config.MCPServerConfig{
		{Name: "down", URL: "http://127.0.0.1:1/mcp"},
	}, nil)

	ts := r.Load(ctx, LoadOptions{UserID: "user-1"})
	// The broken server contributes nothing; built-ins still load
	assert.Nil(t, FindByName(ts, "down__anything"))
	assert.NotNil(t, FindByName(ts, "echo"))
}

func TestRegistry_WorkflowToolsIncluded(t *testing.T) {
	r := NewRegistry(nil, StaticWorkflowSource{
		{ID: "wf-1", Name: "fetch_status", Description: "Fetch service status"},
	})

	ts := r.Load(context.Background(), LoadOptions{UserID: "user-1"})
	tool := FindByName(ts, "fetch_status")
	require.NotNil(t, tool)
	assert.Equal(t, SourceWorkflow, tool.Source)
	assert.Equal(t, "wf-1", tool.WorkflowID)
	assert.NotNil(t, tool.Execute)
}

func TestStripExecution_DoesNotMutateOriginal(t *testing.T) {
	original := []Tool{{Name: "a", Execute: echoTool}}
	stripped := StripExecution(original)

	assert.Nil(t, stripped[0].Execute)
	assert.NotNil(t, original[0].Execute)
}

func TestCredentialSlot(t *testing.T) {
	slot := &CredentialSlot{}
	assert.Empty(t, slot.Get())

	slot.Set("exa-key")
	assert.Equal(t, "exa-key", slot.Get())

	slot.Clear()
	assert.Empty(t, slot.Get())
}

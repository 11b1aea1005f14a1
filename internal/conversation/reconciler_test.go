// ABOUTME: Tests for turn persistence rules and part normalization
// ABOUTME: Merged row vs two rows, JSON stabilization, agent touch

package conversation

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bakhitov/crafty-gateway/internal/store"
)

func setupReconciler(t *testing.T) (*Reconciler, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewReconciler(st), st
}

func newThread(t *testing.T, st store.Store, id, userID string) {
	t.Helper()
	require.NoError(t, st.CreateThread(context.Background(), &store.Thread{ID: id, UserID: userID}))
}

func textMessage(id, threadID, role, text string) *store.Message {
	return &store.Message{
		ID:       id,
		ThreadID: threadID,
		Role:     role,
		Parts:    []store.Part{{Type: store.PartTypeText, Text: text}},
	}
}

func TestPersist_TwoRows(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()
	newThread(t, st, "t1", "user-1")

	err := r.Persist(ctx, &TurnResult{
		UserMessage: textMessage("m1", "t1", store.RoleUser, "hello"),
		Assistant:   textMessage("m2", "t1", store.RoleAssistant, "hi there"),
	})
	require.NoError(t, err)

	msgs, err := st.GetThreadMessages(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
}

func TestPersist_SameIDMergesIntoOneRow(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()
	newThread(t, st, "t1", "user-1")

	assistant := textMessage("m1", "t1", store.RoleAssistant, "merged response")
	assistant.Metadata = &store.MessageMetadata{Provider: "openai", Model: "gpt-4o"}

	err := r.Persist(ctx, &TurnResult{
		UserMessage: textMessage("m1", "t1", store.RoleUser, "hello"),
		Assistant:   assistant,
	})
	require.NoError(t, err)

	msgs, err := st.GetThreadMessages(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "merged response", msgs[0].Parts[0].Text)
	assert.Equal(t, "gpt-4o", msgs[0].Metadata.Model)
}

func TestPersist_ImageBranchAlwaysTwoRows(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()
	newThread(t, st, "t1", "user-1")

	// Same id, but image turns never merge
	err := r.Persist(ctx, &TurnResult{
		UserMessage: textMessage("m1", "t1", store.RoleUser, "draw a cat"),
		Assistant:   textMessage("m2", "t1", store.RoleAssistant, "![image](data:image/png;base64,xxx)"),
		ImageBranch: true,
	})
	require.NoError(t, err)

	msgs, err := st.GetThreadMessages(ctx, "t1", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestPersist_TouchesAgent(t *testing.T) {
	r, st := setupReconciler(t)
	ctx := context.Background()
	newThread(t, st, "t1", "user-1")

	agent := &store.Agent{ID: "agent-1", UserID: "user-1", Name: "bot",
		CreatedAt: time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, st.CreateAgent(ctx, agent))
	before, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)

	err = r.Persist(ctx, &TurnResult{
		UserMessage: textMessage("m1", "t1", store.RoleUser, "hi"),
		Assistant:   textMessage("m2", "t1", store.RoleAssistant, "hello"),
		AgentID:     "agent-1",
	})
	require.NoError(t, err)

	after, err := st.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestNormalizeParts(t *testing.T) {
	parts := []store.Part{
		{Type: store.PartTypeStepStart},
		{Type: store.PartTypeText, Text: ""},
		{Type: store.PartTypeText, Text: "kept"},
		{
			Type:       store.PartTypeTool,
			ToolCallID: "c1",
			ToolName:   "web_search",
			State:      store.ToolStateOutputAvailable,
			Input:      json.RawMessage("{\n  \"query\": \"go\"\n}"),
			Output:     json.RawMessage(`  {"results": [1, 2]}  `),
		},
	}

	got := normalizeParts(parts)
	require.Len(t, got, 2)
	assert.Equal(t, "kept", got[0].Text)
	assert.JSONEq(t, `{"query":"go"}`, string(got[1].Input))
	assert.JSONEq(t, `{"results":[1,2]}`, string(got[1].Output))
	// stabilized to compact form
	assert.Equal(t, `{"query":"go"}`, string(got[1].Input))
}

func TestStabilizeJSON_NonJSONWrapsAsString(t *testing.T) {
	got := stabilizeJSON(json.RawMessage("plain text output"))
	assert.Equal(t, `"plain text output"`, string(got))

	assert.Nil(t, stabilizeJSON(nil))
}

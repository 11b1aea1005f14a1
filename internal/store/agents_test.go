// ABOUTME: Tests for agent persistence
// ABOUTME: Covers instruction round-trips and updated_at touching

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGetAgent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	agent := &Agent{
		ID:     "agent-1",
		UserID: "user-1",
		Name:   "Support bot",
		Instructions: AgentInstructions{
			Role:         "You are a support assistant.",
			SystemPrompt: "Answer in the customer's language.",
			Mentions:     []string{"@support"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateAgent(ctx, agent))

	got, err := store.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "Support bot", got.Name)
	assert.Equal(t, "You are a support assistant.", got.Instructions.Role)
	assert.Equal(t, []string{"@support"}, got.Instructions.Mentions)
}

func TestStore_GetAgent_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetAgent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateAgent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.CreateAgent(ctx, &Agent{
		ID: "agent-1", UserID: "user-1", Name: "Old", CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, store.UpdateAgent(ctx, &Agent{
		ID:   "agent-1",
		Name: "New",
		Instructions: AgentInstructions{
			SystemPrompt: "Be brief.",
		},
	}))

	got, err := store.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
	assert.Equal(t, "Be brief.", got.Instructions.SystemPrompt)

	err = store.UpdateAgent(ctx, &Agent{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_TouchAgent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, store.CreateAgent(ctx, &Agent{
		ID: "agent-1", UserID: "user-1", Name: "Bot", CreatedAt: old, UpdatedAt: old,
	}))

	require.NoError(t, store.TouchAgent(ctx, "agent-1"))

	got, err := store.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(old))

	err = store.TouchAgent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListAndDeleteAgents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.CreateAgent(ctx, &Agent{
		ID: "agent-1", UserID: "user-1", Name: "A", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.CreateAgent(ctx, &Agent{
		ID: "agent-2", UserID: "user-2", Name: "B", CreatedAt: now, UpdatedAt: now,
	}))

	agents, err := store.ListAgents(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-1", agents[0].ID)

	require.NoError(t, store.DeleteAgent(ctx, "agent-1"))
	_, err = store.GetAgent(ctx, "agent-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

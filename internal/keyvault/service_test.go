// ABOUTME: Tests for the credential vault service
// ABOUTME: Covers the resolution chain, decrypt cache and treat-absent behavior

package keyvault

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bakhitov/crafty-gateway/internal/store"
)

func setupVault(t *testing.T, defaults map[string]string) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc, err := NewService(st, "test-encryption-secret", defaults)
	require.NoError(t, err)
	return svc, st
}

func TestService_SetAndGet(t *testing.T) {
	svc, _ := setupVault(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "user-1", "openai", "sk-user-key", SetOptions{Label: "personal"}))

	key, err := svc.Get(ctx, "user-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-user-key", key)
}

func TestService_Get_Absent(t *testing.T) {
	svc, _ := setupVault(t, nil)

	_, err := svc.Get(context.Background(), "user-1", "openai")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestService_Resolve_PrefersVaultOverDefault(t *testing.T) {
	svc, _ := setupVault(t, map[string]string{"openai": "sk-default"})
	ctx := context.Background()

	// No vault record: falls through to the process default
	key, err := svc.Resolve(ctx, "user-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-default", key)

	require.NoError(t, svc.Set(ctx, "user-1", "openai", "sk-user-key", SetOptions{}))

	key, err = svc.Resolve(ctx, "user-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-user-key", key)
}

func TestService_Resolve_NoKeyAnywhere(t *testing.T) {
	svc, _ := setupVault(t, map[string]string{"anthropic": "sk-ant"})

	_, err := svc.Resolve(context.Background(), "user-1", "openai")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestService_Get_UndecryptableTreatedAsAbsent(t *testing.T) {
	svc, st := setupVault(t, nil)
	ctx := context.Background()

	// A record sealed under a different master secret
	otherSealer, err := NewSealer("some-other-secret")
	require.NoError(t, err)
	sealed, err := otherSealer.Seal("sk-foreign")
	require.NoError(t, err)

	require.NoError(t, st.SaveSecret(ctx, &store.Secret{
		ID:        "sec-foreign",
		UserID:    "user-1",
		Provider:  "openai",
		Cipher:    sealed.Cipher,
		IV:        sealed.IV,
		Tag:       sealed.Tag,
		Version:   sealed.Version,
		CreatedAt: time.Now().UTC(),
	}))

	_, err = svc.Get(ctx, "user-1", "openai")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestService_Get_ExpiredTreatedAsAbsent(t *testing.T) {
	svc, _ := setupVault(t, nil)
	ctx := context.Background()

	expired := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, svc.Set(ctx, "user-1", "openai", "sk-old", SetOptions{ExpiresAt: &expired}))

	_, err := svc.Get(ctx, "user-1", "openai")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestService_Set_InvalidatesCache(t *testing.T) {
	svc, _ := setupVault(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "user-1", "openai", "sk-first", SetOptions{}))

	key, err := svc.Get(ctx, "user-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-first", key)

	// Rotation must not serve the stale cached value
	require.NoError(t, svc.Set(ctx, "user-1", "openai", "sk-second", SetOptions{}))

	key, err = svc.Get(ctx, "user-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-second", key)
}

func TestService_List_StripsSealedMaterial(t *testing.T) {
	svc, _ := setupVault(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "user-1", "openai", "sk-user-key", SetOptions{Label: "work"}))

	secrets, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, "work", secrets[0].Label)
	assert.Empty(t, secrets[0].Cipher)
	assert.Empty(t, secrets[0].IV)
	assert.Empty(t, secrets[0].Tag)
}

func TestDecryptCache_NegativeEntryExpires(t *testing.T) {
	cache := newDecryptCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.put("user-1", "openai", "", false)

	_, found, ok := cache.get("user-1", "openai")
	assert.True(t, ok)
	assert.False(t, found)

	// Past the negative TTL the absence must be re-checked
	now = now.Add(negativeTTL + time.Second)
	_, _, ok = cache.get("user-1", "openai")
	assert.False(t, ok)
}

func TestDecryptCache_PositiveOutlivesNegativeTTL(t *testing.T) {
	cache := newDecryptCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.put("user-1", "openai", "sk-key", true)

	now = now.Add(negativeTTL + time.Second)
	value, found, ok := cache.get("user-1", "openai")
	assert.True(t, ok)
	assert.True(t, found)
	assert.Equal(t, "sk-key", value)

	now = now.Add(positiveTTL)
	_, _, ok = cache.get("user-1", "openai")
	assert.False(t, ok)
}

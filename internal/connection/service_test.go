// ABOUTME: Tests for the connection lifecycle service
// ABOUTME: Real sqlite store plus an httptest Evolution server

package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bakhitov/crafty-gateway/internal/auth"
	"github.com/Bakhitov/crafty-gateway/internal/bridge"
	"github.com/Bakhitov/crafty-gateway/internal/keyvault"
	"github.com/Bakhitov/crafty-gateway/internal/store"
)

func setupService(t *testing.T, evoURL string) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sealer, err := keyvault.NewSealer("test-secret")
	require.NoError(t, err)

	evo := bridge.NewEvolutionClient(evoURL, "admin-key")
	svc := NewService(st, evo, nil, sealer, "https://gw.example.com")
	return svc, st
}

func evolutionStub(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch {
		case r.URL.Path == "/instance/create":
			json.NewEncoder(w).Encode(map[string]any{
				"hash":     "instance-key",
				"instance": map[string]any{"status": "created"},
				"qrcode":   map[string]any{"base64": "qr-data"},
			})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestProvisionEvolution(t *testing.T) {
	srv, paths := evolutionStub(t)
	svc, st := setupService(t, srv.URL)

	conn, err := svc.ProvisionEvolution(context.Background(), "user-1", "wa-1", "")
	require.NoError(t, err)

	// QR artifact in the create response starts at qr_required
	assert.Equal(t, store.StatusQRRequired, conn.Status)
	assert.Equal(t, "wa-1", conn.DisplayName)
	assert.NotEmpty(t, conn.EvolutionAPIKey)
	assert.NotEqual(t, "instance-key", conn.EvolutionAPIKey, "instance key must be sealed")

	// The sealed key opens back to the instance hash
	key, err := svc.instanceKey(conn)
	require.NoError(t, err)
	assert.Equal(t, "instance-key", key)

	// Webhook registration happened
	assert.Contains(t, *paths, "/webhook/set/wa-1")

	saved, err := st.GetConnectionByInstanceName(context.Background(), "wa-1")
	require.NoError(t, err)
	assert.Equal(t, conn.ID, saved.ID)
}

func TestProvisionEvolution_RequiresInstanceName(t *testing.T) {
	svc, _ := setupService(t, "http://unused.invalid")
	_, err := svc.ProvisionEvolution(context.Background(), "user-1", "", "name")
	assert.Error(t, err)
}

func TestProcessEvolutionWebhook_StatusAndEnrichment(t *testing.T) {
	srv, _ := evolutionStub(t)
	svc, st := setupService(t, srv.URL)
	ctx := context.Background()

	conn, err := svc.ProvisionEvolution(ctx, "user-1", "wa-1", "")
	require.NoError(t, err)

	svc.ProcessEvolutionWebhook(ctx, conn.ID, map[string]any{
		"event": "connection.update",
		"instance": map[string]any{
			"state":       "open",
			"profileName": "Work Phone",
			"ownerJid":    "79991234567@s.whatsapp.net",
		},
	})

	updated, err := st.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOpen, updated.Status)
	assert.Equal(t, "Work Phone", updated.DisplayName)
	assert.Equal(t, "79991234567", updated.ProviderMetadata["phone"])
}

func TestProcessEvolutionWebhook_ReplayIsNoOp(t *testing.T) {
	srv, _ := evolutionStub(t)
	svc, st := setupService(t, srv.URL)
	ctx := context.Background()

	conn, err := svc.ProvisionEvolution(ctx, "user-1", "wa-1", "")
	require.NoError(t, err)

	payload := map[string]any{"state": "open", "phone": "111"}
	svc.ProcessEvolutionWebhook(ctx, conn.ID, payload)

	first, err := st.GetConnection(ctx, conn.ID)
	require.NoError(t, err)

	// Replay carrying less information must not lose the phone
	svc.ProcessEvolutionWebhook(ctx, conn.ID, map[string]any{"state": "open"})

	second, err := st.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, "111", second.ProviderMetadata["phone"])
}

func TestProcessEvolutionWebhook_CloseEvent(t *testing.T) {
	srv, _ := evolutionStub(t)
	svc, st := setupService(t, srv.URL)
	ctx := context.Background()

	conn, err := svc.ProvisionEvolution(ctx, "user-1", "wa-1", "")
	require.NoError(t, err)

	svc.ProcessEvolutionWebhook(ctx, conn.ID, map[string]any{"event": "logout.instance"})

	updated, err := st.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusClose, updated.Status)
}

func TestProcessChatwootWebhook(t *testing.T) {
	svc, st := setupService(t, "http://unused.invalid")
	ctx := context.Background()

	conn, err := svc.CreateChatwootConnection(ctx, "user-1", "7", "3", "Support")
	require.NoError(t, err)
	assert.Equal(t, store.StatusConnecting, conn.Status)

	svc.ProcessChatwootWebhook(ctx, conn.ID, map[string]any{"event": "enabled"})

	updated, err := st.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOpen, updated.Status)
}

func TestDelete_OwnerMismatch(t *testing.T) {
	srv, _ := evolutionStub(t)
	svc, _ := setupService(t, srv.URL)
	ctx := context.Background()

	conn, err := svc.ProvisionEvolution(ctx, "user-1", "wa-1", "")
	require.NoError(t, err)

	err = svc.Delete(ctx, "user-2", conn.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestDelete_TearsDownInstance(t *testing.T) {
	srv, paths := evolutionStub(t)
	svc, st := setupService(t, srv.URL)
	ctx := context.Background()

	conn, err := svc.ProvisionEvolution(ctx, "user-1", "wa-1", "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "user-1", conn.ID))

	assert.Contains(t, *paths, "/instance/delete/wa-1")
	_, err = st.GetConnection(ctx, conn.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPoll_AppliesLiveState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/instance/create":
			json.NewEncoder(w).Encode(map[string]any{
				"hash":     "instance-key",
				"instance": map[string]any{"status": "created"},
			})
		case r.URL.Path == "/instance/connectionState/wa-1":
			json.NewEncoder(w).Encode(map[string]any{
				"instance": map[string]any{
					"state":       "open",
					"profileName": "Work Phone",
					"number":      "77010001122",
				},
			})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	svc, st := setupService(t, srv.URL)
	ctx := context.Background()

	conn, err := svc.ProvisionEvolution(ctx, "user-1", "wa-1", "")
	require.NoError(t, err)
	assert.Equal(t, store.StatusConnecting, conn.Status)

	svc.Poll(ctx)

	updated, err := st.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOpen, updated.Status)

	// polling enriches the same way a webhook delivery would
	assert.Equal(t, "Work Phone", updated.DisplayName)
	assert.Equal(t, "77010001122", updated.ProviderMetadata["phone"])
}

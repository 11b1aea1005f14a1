// ABOUTME: Tests for the SSE chat endpoint and the auth boundary
// ABOUTME: Shared fixture wiring real store, vault and stub bridges

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bakhitov/crafty-gateway/internal/auth"
	"github.com/Bakhitov/crafty-gateway/internal/bridge"
	"github.com/Bakhitov/crafty-gateway/internal/channel"
	"github.com/Bakhitov/crafty-gateway/internal/connection"
	"github.com/Bakhitov/crafty-gateway/internal/conversation"
	"github.com/Bakhitov/crafty-gateway/internal/dedupe"
	"github.com/Bakhitov/crafty-gateway/internal/keyvault"
	"github.com/Bakhitov/crafty-gateway/internal/llm"
	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// stubVerifier treats the bearer token itself as the user id.
type stubVerifier struct{}

func (stubVerifier) Verify(token string) (string, error) {
	if token == "invalid" {
		return "", auth.ErrUnauthorized
	}
	return token, nil
}

// stubRunner replays a scripted event stream and records the request.
type stubRunner struct {
	events []conversation.Event
	err    error
	got    *conversation.TurnRequest
}

func (s *stubRunner) Run(_ context.Context, req *conversation.TurnRequest) (<-chan conversation.Event, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan conversation.Event, len(s.events))
	for _, ev := range s.events {
		out <- ev
	}
	close(out)
	return out, nil
}

// noModelResolver fails every resolution; auto-reply paths swallow it.
type noModelResolver struct{}

func (noModelResolver) Resolve(context.Context, string, string, string) (llm.Model, error) {
	return nil, errors.New("no model configured")
}

type fixture struct {
	t       *testing.T
	store   store.Store
	runner  *stubRunner
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "gw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	const secret = "test-key-encryption-secret"
	vault, err := keyvault.NewService(st, secret, nil)
	require.NoError(t, err)
	sealer, err := keyvault.NewSealer(secret)
	require.NoError(t, err)

	evo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/instance/create" {
			json.NewEncoder(w).Encode(map[string]any{
				"hash":     "instance-key-1",
				"instance": map[string]any{"status": "connecting"},
				"qrcode":   map[string]any{"base64": "data:image/png;base64,QR"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	t.Cleanup(evo.Close)

	cw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	t.Cleanup(cw.Close)

	evoClient := bridge.NewEvolutionClient(evo.URL, "admin-key")
	cwClient := bridge.NewChatwootClient(cw.URL, "cw-token")

	runner := &stubRunner{}
	srv := New(Options{
		Addr:        "127.0.0.1:0",
		Store:       st,
		Turns:       runner,
		Connections: connection.NewService(st, evoClient, cwClient, sealer, "https://gw.example.com"),
		Channels:    channel.NewService(st, cwClient, noModelResolver{}, dedupe.New(time.Minute, 100), "", ""),
		Vault:       vault,
		Verifier:    stubVerifier{},
	})

	return &fixture{t: t, store: st, runner: runner, handler: srv.Handler()}
}

// do performs one request against the route table. An empty token sends
// no Authorization header.
func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestChat_StreamsEvents(t *testing.T) {
	f := newFixture(t)
	f.runner.events = []conversation.Event{
		{Type: conversation.EventText, Text: "hel"},
		{Type: conversation.EventText, Text: "lo"},
		{Type: conversation.EventFinish},
	}

	rec := f.do(http.MethodPost, "/api/chat", "user-1", map[string]any{"text": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: started")
	assert.Contains(t, body, "event: text")
	assert.Contains(t, body, "event: finish")

	require.NotNil(t, f.runner.got)
	assert.Equal(t, "user-1", f.runner.got.UserID)
	assert.NotEmpty(t, f.runner.got.ThreadID)
	assert.Equal(t, f.runner.got.ThreadID, f.runner.got.Message.ThreadID)
	assert.Equal(t, "hi", f.runner.got.Message.Parts[0].Text)
}

func TestChat_StartedEventCarriesThreadID(t *testing.T) {
	f := newFixture(t)
	f.runner.events = []conversation.Event{{Type: conversation.EventFinish}}

	rec := f.do(http.MethodPost, "/api/chat", "user-1", map[string]any{"thread_id": "t-42", "text": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"thread_id":"t-42"`)
	assert.Equal(t, "t-42", f.runner.got.ThreadID)
}

func TestChat_ImageSettingsMapped(t *testing.T) {
	f := newFixture(t)
	f.runner.events = []conversation.Event{{Type: conversation.EventFinish}}

	rec := f.do(http.MethodPost, "/api/chat", "user-1", map[string]any{
		"text":     "draw a fox",
		"provider": "google",
		"image":    map[string]any{"engine": "auto", "aspect_ratio": "16:9"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, f.runner.got.ImageSettings)
	assert.Equal(t, "auto", f.runner.got.ImageSettings.Engine)
	assert.Equal(t, "16:9", f.runner.got.ImageSettings.AspectRatio)
	assert.Equal(t, "google", f.runner.got.ImageSettings.RequestedProvider)
}

func TestChat_RequiresText(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/chat", "user-1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_ForeignThreadForbidden(t *testing.T) {
	f := newFixture(t)
	f.runner.err = auth.ErrForbidden

	rec := f.do(http.MethodPost, "/api/chat", "user-2", map[string]any{"thread_id": "t1", "text": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuth_MissingTokenRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/chat", "", map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_InvalidTokenRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/threads", "invalid", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth_NoAuthRequired(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

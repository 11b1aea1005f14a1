// ABOUTME: Tests for built-in tools
// ABOUTME: Covers echo, web search key gating and upstream error handling

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoTool(t *testing.T) {
	out, err := echoTool(context.Background(), json.RawMessage(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestWebSearch_NoKeyConfigured(t *testing.T) {
	l := newBuiltinLoader(&CredentialSlot{}, "")

	_, err := l.webSearch(context.Background(), json.RawMessage(`{"query":"go"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestWebSearch_SendsKeyAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "exa-key", r.Header.Get("x-api-key"))
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "golang generics", payload["query"])
		w.Write([]byte(`{"results":[{"title":"spec"}]}`))
	}))
	defer srv.Close()

	slot := &CredentialSlot{}
	slot.Set("exa-key")
	l := newBuiltinLoader(slot, srv.URL)

	out, err := l.webSearch(context.Background(), json.RawMessage(`{"query":"golang generics"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "spec")
}

func TestWebSearch_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	slot := &CredentialSlot{}
	slot.Set("bad-key")
	l := newBuiltinLoader(slot, srv.URL)

	_, err := l.webSearch(context.Background(), json.RawMessage(`{"query":"go"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestWebSearch_EmptyQuery(t *testing.T) {
	slot := &CredentialSlot{}
	slot.Set("exa-key")
	l := newBuiltinLoader(slot, "")

	_, err := l.webSearch(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
}

// ABOUTME: Tests for the Chatwoot application API client
// ABOUTME: Covers contact/conversation resolution and message posting

package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatwootClient_EnsureContact(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/accounts/7/contacts", r.URL.Path)
		require.Equal(t, "Bearer cw-token", r.Header.Get("Authorization"))
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"payload": map[string]any{"contact": map[string]any{"id": 42}},
		})
	}))
	defer srv.Close()

	c := NewChatwootClient(srv.URL, "cw-token")
	id, err := c.EnsureContact(context.Background(), "7", "Alice", "79991234567", "79991234567@s.whatsapp.net")
	require.NoError(t, err)

	assert.Equal(t, int64(42), id)
	assert.Equal(t, "Alice", gotBody["name"])
	assert.Equal(t, "+79991234567", gotBody["phone_number"])
	assert.Equal(t, "79991234567@s.whatsapp.net", gotBody["identifier"])
}

func TestChatwootClient_EnsureContact_NamelessFallsBackToPhone(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"id": 5})
	}))
	defer srv.Close()

	c := NewChatwootClient(srv.URL, "cw-token")
	id, err := c.EnsureContact(context.Background(), "7", "", "79990000000", "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, "79990000000", gotBody["name"])
}

func TestChatwootClient_EnsureConversation_ReusesOpen(t *testing.T) {
	created := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"payload": []map[string]any{
					{"id": 11, "inbox_id": 3, "status": "resolved"},
					{"id": 12, "inbox_id": 3, "status": "open"},
					{"id": 13, "inbox_id": 9, "status": "open"},
				},
			})
		default:
			created = true
			json.NewEncoder(w).Encode(map[string]any{"id": 99})
		}
	}))
	defer srv.Close()

	c := NewChatwootClient(srv.URL, "cw-token")
	id, err := c.EnsureConversation(context.Background(), "7", 42, "3")
	require.NoError(t, err)

	assert.Equal(t, int64(12), id)
	assert.False(t, created, "should reuse the open conversation")
}

func TestChatwootClient_EnsureConversation_CreatesWhenNoneOpen(t *testing.T) {
	var createBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"payload": []any{}})
		default:
			json.NewDecoder(r.Body).Decode(&createBody)
			json.NewEncoder(w).Encode(map[string]any{"id": 99})
		}
	}))
	defer srv.Close()

	c := NewChatwootClient(srv.URL, "cw-token")
	id, err := c.EnsureConversation(context.Background(), "7", 42, "3")
	require.NoError(t, err)

	assert.Equal(t, int64(99), id)
	assert.Equal(t, float64(3), createBody["inbox_id"])
	assert.Equal(t, "open", createBody["status"])
}

func TestChatwootClient_CreateMessage(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/accounts/7/conversations/12/messages", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChatwootClient(srv.URL, "cw-token")
	err := c.CreateMessage(context.Background(), "7", 12, "hello there", "outgoing")
	require.NoError(t, err)

	assert.Equal(t, "hello there", gotBody["content"])
	assert.Equal(t, "outgoing", gotBody["message_type"])
}

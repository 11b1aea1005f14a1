// ABOUTME: Tests for the HTTP auth middleware and ownership checks
// ABOUTME: Covers bearer extraction, context plumbing and RequireOwner

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	token, err := v.Generate("user-1", time.Hour)
	require.NoError(t, err)

	var gotUserID string
	handler := HTTPAuthMiddleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUserID)
}

func TestHTTPAuthMiddleware_MissingHeader(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	handler := HTTPAuthMiddleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPAuthMiddleware_BadToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	handler := HTTPAuthMiddleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireOwner(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-1")

	assert.NoError(t, RequireOwner(ctx, "user-1"))
	assert.ErrorIs(t, RequireOwner(ctx, "user-2"), ErrForbidden)
	assert.ErrorIs(t, RequireOwner(context.Background(), "user-1"), ErrUnauthorized)
}

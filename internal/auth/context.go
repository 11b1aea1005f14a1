// ABOUTME: Authenticated user identity propagation via context
// ABOUTME: Provides WithUserID/UserIDFromContext for request handlers

package auth

import (
	"context"
)

// userIDKey is the key type for storing the authenticated user ID in context
type userIDKey struct{}

// WithUserID returns a new context carrying the authenticated user ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext retrieves the authenticated user ID from the context.
// Returns an empty string if no identity is attached.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey{}).(string)
	return userID
}

// RequireOwner checks that the context identity owns the given resource.
// Returns ErrUnauthorized with no identity, ErrForbidden on a mismatch.
func RequireOwner(ctx context.Context, resourceUserID string) error {
	userID := UserIDFromContext(ctx)
	if userID == "" {
		return ErrUnauthorized
	}
	if userID != resourceUserID {
		return ErrForbidden
	}
	return nil
}

// Package auth verifies session tokens and propagates user identity.
//
// Session issuance lives outside the gateway; this package only
// verifies HS256 JWTs, extracts the user ID from the "sub" claim, and
// threads it through request contexts. RequireOwner enforces resource
// ownership before any mutation.
package auth

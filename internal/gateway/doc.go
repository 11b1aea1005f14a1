// ABOUTME: Package doc for the HTTP API surface
// ABOUTME: SSE chat streaming, webhook intake, resource CRUD

// Package gateway exposes the HTTP API: the SSE chat endpoint, inbound
// webhook intake for the messaging bridges, and CRUD for connections,
// channel bindings, credentials, agents and thread history.
//
// Webhook endpoints sit outside the auth boundary and always
// acknowledge with 200 because bridge delivery is at-least-once;
// everything else under /api/ requires a bearer token.
package gateway

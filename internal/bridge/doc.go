// ABOUTME: Package doc for the outbound bridge clients
// ABOUTME: Evolution (WhatsApp) and Chatwoot HTTP clients

// Package bridge holds the outbound HTTP clients for the two channel
// bridges: the Evolution WhatsApp API (instance lifecycle, connection
// state, webhook registration) and the Chatwoot application API
// (contacts, conversations, messages). Both return *StatusError for
// non-2xx upstream answers so callers can inspect the status and body.
package bridge

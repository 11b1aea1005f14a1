// ABOUTME: Package doc for the connection status layer
// ABOUTME: Normalizer, enricher, lifecycle service and poller

// Package connection keeps bridge connection rows in sync with their
// external state. Raw bridge vocabularies (Evolution connection states
// and event names, Chatwoot lifecycle events) normalize onto one
// canonical enum: connecting, qr_required, open, close, error.
//
// Every processed payload also contributes metadata: the phone number
// and display name are extracted through ordered fallback chains and
// merged additively, so replayed or partial payloads never erase what
// an earlier payload established. Status replays are no-ops.
//
// A cron poller re-reads Evolution connection state on an interval and
// pushes it through the same normalizer, covering lost webhooks.
package connection

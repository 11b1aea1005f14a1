// ABOUTME: Package doc for the turn orchestration layer
// ABOUTME: Orchestrator drives a turn, Reconciler writes its rows

// Package conversation drives one chat turn from an inbound message to
// a terminal stream event. The orchestrator owns the full contract:
// thread access control, idempotent resend handling, tool eligibility
// and concurrent fail-open loading, pending manual tool resumption,
// system prompt assembly, the image synthesis branch, and the bounded
// streaming reasoning/tool loop.
//
// Persistence goes through the reconciler, which decides between one
// merged row and two rows, normalizes tool payloads into stable JSON,
// strips stream-only markers, and touches the driving agent.
//
// A model failure terminates the stream with an error event and
// persists nothing for the attempt. Tool sources never fail a turn.
package conversation

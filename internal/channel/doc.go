// ABOUTME: Package doc for the channel agent binding layer
// ABOUTME: Bindings, Chatwoot auto-reply and WhatsApp message mirroring

// Package channel binds inboxes to agents and runs the auto-reply path.
// A binding maps one (user, inbox) pair to one agent, last write wins.
// When a genuine incoming Chatwoot message arrives on a bound inbox the
// service merges the agent's role and system prompt, runs a single
// non-streaming completion as the connection's owner and relays the
// reply as an outgoing message. Incoming WhatsApp texts are mirrored
// into the linked Chatwoot inbox, deduped per delivery.
//
// Every step here is best effort: failures are logged and swallowed so
// webhook handlers can always ack.
package channel

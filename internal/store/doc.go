// Package store provides persistence for crafty-gateway.
//
// It defines the Store interface over threads, messages, agents,
// connections, channel agent maps and sealed user secrets, plus a
// SQLite implementation (modernc.org/sqlite) with WAL mode and
// automatic schema creation.
//
// Message saves are keyed by message ID: writing an existing ID
// replaces the row, which makes replayed turn persistence idempotent.
// Connection metadata merges are additive and never delete keys the
// patch does not mention.
package store

// Package tools assembles the per-turn tool set.
//
// Three loaders contribute: MCP plugin servers (streamable HTTP),
// user-defined workflows (sequences of HTTP request steps) and the
// app's built-ins (web search, echo). Loaders run concurrently and
// fail open — a broken source means fewer tools, never a failed turn.
//
// Tool descriptors are ephemeral: they exist for one turn and are
// never persisted. In manual mode execution closures are stripped so
// the client runs tools itself while the model still sees them.
package tools

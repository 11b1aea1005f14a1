// Package config handles configuration loading for crafty-gateway.
//
// Configuration is loaded from YAML files with environment variable
// expansion (${VAR_NAME} syntax) and time.ParseDuration parsing for
// interval values.
//
// Sections cover the HTTP server, SQLite database path, session auth,
// the key-encryption secret for the credential vault, process-wide
// default provider API keys, plugin (MCP) servers, the two messaging
// bridges (Evolution and Chatwoot), the connection status poller and
// logging.
package config

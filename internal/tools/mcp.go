// ABOUTME: MCP plugin-server tool loader over streamable HTTP
// ABOUTME: Each server fails open: an unreachable server contributes zero tools

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Bakhitov/crafty-gateway/internal/config"
)

const mcpProtocolVersion = "2024-11-05"

// mcpLoader connects to configured plugin servers and lists their tools
type mcpLoader struct {
	servers []config.MCPServerConfig
	logger  *slog.Logger
}

func newMCPLoader(servers []config.MCPServerConfig, logger *slog.Logger) *mcpLoader {
	return &mcpLoader{servers: servers, logger: logger}
}

// Load lists tools from every configured server. Failures are logged
// and skipped; a broken plugin server never blocks the turn.
func (l *mcpLoader) Load(ctx context.Context) []Tool {
	var result []Tool
	for _, srv := range l.servers {
		tools, err := l.loadServer(ctx, srv)
		if err != nil {
			l.logger.Warn("plugin server unavailable, skipping",
				"server", srv.Name, "error", err)
			continue
		}
		result = append(result, tools...)
	}
	return result
}

func (l *mcpLoader) loadServer(ctx context.Context, srv config.MCPServerConfig) ([]Tool, error) {
	c, err := connectMCP(ctx, srv)
	if err != nil {
		return nil, err
	}

	listResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("listing tools: %w", err)
	}

	tools := make([]Tool, 0, len(listResult.Tools))
	for _, t := range listResult.Tools {
		schemaJSON, err := json.Marshal(t.InputSchema)
		if err != nil {
			schemaJSON = []byte(`{"type":"object"}`)
		}

		originName := t.Name
		tools = append(tools, Tool{
			// Namespace by server so two servers can expose the same tool
			Name:        srv.Name + "__" + originName,
			Source:      SourceMCP,
			ServerName:  srv.Name,
			OriginName:  originName,
			Description: t.Description,
			InputSchema: schemaJSON,
			Execute: func(callCtx context.Context, args json.RawMessage) (string, error) {
				return callMCPTool(callCtx, srv, originName, args)
			},
		})
	}

	c.Close()
	return tools, nil
}

// callMCPTool dials the server and invokes one tool. A connection per
// call keeps tool handles independent of the listing connection's
// lifetime.
func callMCPTool(ctx context.Context, srv config.MCPServerConfig, toolName string, args json.RawMessage) (string, error) {
	c, err := connectMCP(ctx, srv)
	if err != nil {
		return "", err
	}
	defer c.Close()

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("decoding tool arguments: %w", err)
		}
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: arguments,
		},
	})
	if err != nil {
		return "", fmt.Errorf("calling tool %s: %w", toolName, err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s reported error: %s", toolName, sb.String())
	}
	return sb.String(), nil
}

func connectMCP(ctx context.Context, srv config.MCPServerConfig) (*client.Client, error) {
	var options []transport.StreamableHTTPCOption
	if len(srv.Headers) > 0 {
		options = append(options, transport.WithHTTPHeaders(srv.Headers))
	}

	httpTransport, err := transport.NewStreamableHTTP(srv.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	c := client.NewClient(httpTransport)
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting client: %w", err)
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcpProtocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "crafty-gateway",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing: %w", err)
	}

	return c, nil
}

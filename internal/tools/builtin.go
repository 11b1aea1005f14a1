// ABOUTME: Built-in app tools: web search and echo
// ABOUTME: Web search reads its API key from the turn-scoped credential slot

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultExaSearchURL = "https://api.exa.ai/search"
	searchTimeout       = 20 * time.Second
	searchResultLimit   = 5
)

type builtinLoader struct {
	searchKey *CredentialSlot
	searchURL string
	client    *http.Client
}

func newBuiltinLoader(searchKey *CredentialSlot, searchURL string) *builtinLoader {
	if searchURL == "" {
		searchURL = defaultExaSearchURL
	}
	return &builtinLoader{
		searchKey: searchKey,
		searchURL: searchURL,
		client:    &http.Client{Timeout: searchTimeout},
	}
}

// Load returns the app's built-in tools
func (l *builtinLoader) Load() []Tool {
	return []Tool{
		{
			Name:        "web_search",
			Source:      SourceApp,
			Description: "Search the web and return the most relevant results with text snippets.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The search query"}
				},
				"required": ["query"]
			}`),
			Execute: l.webSearch,
		},
		{
			Name:        "echo",
			Source:      SourceApp,
			Description: "Echo the given text back unchanged. Useful for testing tool wiring.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"text": {"type": "string", "description": "Text to echo"}
				},
				"required": ["text"]
			}`),
			Execute: echoTool,
		},
	}
}

func (l *builtinLoader) webSearch(ctx context.Context, args json.RawMessage) (string, error) {
	key := l.searchKey.Get()
	if key == "" {
		return "", errors.New("web search is not configured: no search API key")
	}

	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &input); err != nil || input.Query == "" {
		return "", errors.New("web search requires a non-empty query")
	}

	payload, _ := json.Marshal(map[string]any{
		"query":      input.Query,
		"numResults": searchResultLimit,
		"contents":   map[string]any{"text": true},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.searchURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", key)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("search upstream returned %d: %s", resp.StatusCode, string(body))
	}

	return string(body), nil
}

func echoTool(_ context.Context, args json.RawMessage) (string, error) {
	var input struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("decoding echo arguments: %w", err)
	}
	return input.Text, nil
}

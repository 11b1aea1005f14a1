// ABOUTME: Outbound client for the Chatwoot application API
// ABOUTME: Contact, conversation and message creation plus inbox teardown

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ChatwootClient talks to a Chatwoot server with an account API token
type ChatwootClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewChatwootClient creates a client for the given Chatwoot server
func NewChatwootClient(baseURL, token string) *ChatwootClient {
	return &ChatwootClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default().With("component", "chatwoot"),
	}
}

// EnsureContact creates a contact in the account and returns its id.
// Chatwoot dedupes on identifier, so replays resolve to the same
// contact.
func (c *ChatwootClient) EnsureContact(ctx context.Context, accountID, name, phone, sourceID string) (int64, error) {
	payload := map[string]any{"name": name}
	if payload["name"] == "" {
		if phone != "" {
			payload["name"] = phone
		} else {
			payload["name"] = "Unknown"
		}
	}
	if phone != "" {
		payload["phone_number"] = "+" + strings.TrimPrefix(phone, "+")
	}
	if sourceID != "" {
		payload["identifier"] = sourceID
	} else if phone != "" {
		payload["identifier"] = phone
	}

	raw, err := c.do(ctx, http.MethodPost, "/api/v1/accounts/"+accountID+"/contacts", payload)
	if err != nil {
		return 0, err
	}

	// Contact id lives at different depths across Chatwoot versions
	if id := numberField(raw, "id"); id != 0 {
		return id, nil
	}
	if p, ok := raw["payload"].(map[string]any); ok {
		if contact, ok := p["contact"].(map[string]any); ok {
			if id := numberField(contact, "id"); id != 0 {
				return id, nil
			}
		}
		if id := numberField(p, "id"); id != 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("contact id missing from response")
}

// EnsureConversation returns an open conversation between the contact
// and the inbox, creating one if none exists.
func (c *ChatwootClient) EnsureConversation(ctx context.Context, accountID string, contactID int64, inboxID string) (int64, error) {
	if id, err := c.findOpenConversation(ctx, accountID, contactID, inboxID); err == nil && id != 0 {
		return id, nil
	}

	inbox, err := strconv.ParseInt(inboxID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing inbox id: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/api/v1/accounts/"+accountID+"/conversations", map[string]any{
		"source_id":  strconv.FormatInt(contactID, 10),
		"contact_id": contactID,
		"inbox_id":   inbox,
		"status":     "open",
	})
	if err != nil {
		return 0, err
	}

	if id := numberField(raw, "id"); id != 0 {
		return id, nil
	}
	if p, ok := raw["payload"].(map[string]any); ok {
		if id := numberField(p, "id"); id != 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("conversation id missing from response")
}

func (c *ChatwootClient) findOpenConversation(ctx context.Context, accountID string, contactID int64, inboxID string) (int64, error) {
	raw, err := c.do(ctx, http.MethodGet,
		"/api/v1/accounts/"+accountID+"/contacts/"+strconv.FormatInt(contactID, 10)+"/conversations", nil)
	if err != nil {
		return 0, err
	}

	list, ok := raw["payload"].([]any)
	if !ok {
		return 0, nil
	}
	for _, item := range list {
		conv, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if strconv.FormatInt(numberField(conv, "inbox_id"), 10) != inboxID {
			continue
		}
		if status, _ := conv["status"].(string); status == "resolved" {
			continue
		}
		return numberField(conv, "id"), nil
	}
	return 0, nil
}

// CreateMessage posts a message into a conversation. messageType is
// "incoming" or "outgoing".
func (c *ChatwootClient) CreateMessage(ctx context.Context, accountID string, conversationID int64, content, messageType string) error {
	_, err := c.do(ctx, http.MethodPost,
		"/api/v1/accounts/"+accountID+"/conversations/"+strconv.FormatInt(conversationID, 10)+"/messages",
		map[string]any{
			"content":      content,
			"message_type": messageType,
		})
	return err
}

// DeleteInbox removes an inbox, best effort on connection teardown
func (c *ChatwootClient) DeleteInbox(ctx context.Context, accountID, inboxID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/accounts/"+accountID+"/inboxes/"+inboxID, nil)
	return err
}

func (c *ChatwootClient) do(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("api_access_token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling chatwoot: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, newStatusError(resp.StatusCode, respBody)
	}

	raw := map[string]any{}
	if len(respBody) > 0 {
		// Conversation lists arrive as a bare array on some versions
		if err := json.Unmarshal(respBody, &raw); err != nil {
			var list []any
			if json.Unmarshal(respBody, &list) == nil {
				raw = map[string]any{"payload": list}
			}
		}
	}
	return raw, nil
}

// numberField reads a JSON number field as int64
func numberField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

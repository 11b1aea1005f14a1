// ABOUTME: Evolution to Chatwoot message mirroring
// ABOUTME: Ensures contact and conversation, deduped on message id

package channel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HandleEvolutionMessage mirrors an incoming WhatsApp text into the
// connection's linked Chatwoot inbox: ensure contact, ensure an open
// conversation, post the text as an incoming message. Best effort and
// deduped, since Evolution delivers at least once.
func (s *Service) HandleEvolutionMessage(ctx context.Context, connectionID string, payload map[string]any) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil || conn.ChatwootInboxID == "" {
		return
	}

	event := strings.ToLower(firstString(payload, "event", "type"))
	_, hasMessage := payload["message"].(map[string]any)
	if !strings.Contains(event, "message") && !hasMessage {
		return
	}

	text := messageTextFrom(payload)
	phone := relayPhoneFrom(payload)
	if text == "" || phone == "" {
		return
	}

	if s.seen != nil && s.seen.CheckAndMark(relayKey(connectionID, payload, text)) {
		return
	}

	name := firstString(payload, "pushName", "profileName")
	contactID, err := s.chatwoot.EnsureContact(ctx, conn.ChatwootAccountID, name, phone, phone)
	if err != nil {
		s.logger.Debug("relay contact failed", "connection_id", conn.ID, "error", err)
		return
	}

	conversationID, err := s.chatwoot.EnsureConversation(ctx, conn.ChatwootAccountID, contactID, conn.ChatwootInboxID)
	if err != nil {
		s.logger.Debug("relay conversation failed", "connection_id", conn.ID, "error", err)
		return
	}

	if err := s.chatwoot.CreateMessage(ctx, conn.ChatwootAccountID, conversationID, text, "incoming"); err != nil {
		s.logger.Debug("relay message failed", "connection_id", conn.ID, "error", err)
	}
}

func messageTextFrom(payload map[string]any) string {
	if msg, ok := payload["message"].(map[string]any); ok {
		if text := firstString(msg, "text", "conversation"); text != "" {
			return strings.TrimSpace(text)
		}
	}
	return strings.TrimSpace(firstString(payload, "text", "content"))
}

func relayPhoneFrom(payload map[string]any) string {
	inst, _ := payload["instance"].(map[string]any)
	if inst != nil {
		if phone := firstString(inst, "number", "phone"); phone != "" {
			return phone
		}
	}
	if phone := firstString(payload, "number", "phone", "from"); phone != "" {
		return phone
	}
	if jid := firstString(payload, "remoteJid"); jid != "" {
		local, _, _ := strings.Cut(jid, "@")
		return local
	}
	return ""
}

// relayKey identifies one delivery: the bridge message id when present,
// otherwise a content hash.
func relayKey(connectionID string, payload map[string]any, text string) string {
	if key, ok := payload["key"].(map[string]any); ok {
		if id := firstString(key, "id"); id != "" {
			return connectionID + ":" + id
		}
	}
	if id := firstString(payload, "messageId", "id"); id != "" {
		return connectionID + ":" + id
	}
	sum := sha256.Sum256([]byte(text))
	return connectionID + ":" + hex.EncodeToString(sum[:8])
}

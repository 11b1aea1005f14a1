// ABOUTME: Status normalization tables for the two bridge vocabularies
// ABOUTME: Maps raw bridge tokens and event names onto the canonical enum

package connection

import (
	"strings"

	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// evolutionStates maps Evolution's connection state tokens onto the
// canonical status enum.
var evolutionStates = map[string]string{
	"qr":              store.StatusQRRequired,
	"qrcode":          store.StatusQRRequired,
	"qrcode_required": store.StatusQRRequired,
	"connecting":      store.StatusConnecting,
	"created":         store.StatusConnecting,
	"open":            store.StatusOpen,
	"close":           store.StatusClose,
	"closed":          store.StatusClose,
	"error":           store.StatusError,
}

// chatwootEvents maps Chatwoot lifecycle events onto the canonical enum
var chatwootEvents = map[string]string{
	"inbox_created": store.StatusConnecting,
	"enabled":       store.StatusOpen,
	"active":        store.StatusOpen,
	"disabled":      store.StatusClose,
}

// NormalizeEvolutionState maps a raw Evolution state token to a
// canonical status. Unknown tokens map only when they mention "qr"
// (Evolution's QR vocabulary drifts across versions); everything else
// yields no transition.
func NormalizeEvolutionState(raw string) (string, bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	if token == "" {
		return "", false
	}
	if status, ok := evolutionStates[token]; ok {
		return status, true
	}
	if strings.Contains(token, "qr") {
		return store.StatusQRRequired, true
	}
	return "", false
}

// NormalizeEvolutionEvent maps an Evolution webhook event name to a
// canonical status. Most events carry no status meaning on their own.
func NormalizeEvolutionEvent(event string) (string, bool) {
	ev := strings.ToLower(strings.TrimSpace(event))
	switch {
	case ev == "":
		return "", false
	case strings.Contains(ev, "remove.instance"),
		strings.Contains(ev, "logout.instance"),
		strings.Contains(ev, "no.connection"):
		return store.StatusClose, true
	case strings.Contains(ev, "qrcode.updated"):
		return store.StatusQRRequired, true
	}
	return "", false
}

// NormalizeChatwootEvent maps a Chatwoot lifecycle event to a canonical
// status.
func NormalizeChatwootEvent(event string) (string, bool) {
	status, ok := chatwootEvents[strings.ToLower(strings.TrimSpace(event))]
	return status, ok
}

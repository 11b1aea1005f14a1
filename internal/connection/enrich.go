// ABOUTME: Metadata enrichment extracted from bridge payloads
// ABOUTME: Ordered field fallbacks for phone, display name and counters

package connection

import "strings"

// Enrichment is what a bridge payload contributes to a connection's
// metadata. All fields are optional.
type Enrichment struct {
	Phone       string
	DisplayName string
	Stats       map[string]any
}

// ExtractEnrichment pulls phone, display name and counter stats out of
// an Evolution payload. Evolution nests the interesting fields under
// "instance" in some payloads and at the top level in others, so every
// lookup walks an ordered fallback chain.
func ExtractEnrichment(payload map[string]any) Enrichment {
	var e Enrichment

	inst, _ := payload["instance"].(map[string]any)

	e.Phone = firstNonEmpty(
		stringAt(inst, "number"),
		stringAt(payload, "number"),
		jidLocalPart(firstNonEmpty(stringAt(inst, "ownerJid"), stringAt(payload, "ownerJid"))),
		stringAt(inst, "phone"),
		stringAt(payload, "phone"),
		jidLocalPart(firstNonEmpty(
			stringAt(inst, "wid"),
			stringAt(payload, "wid"),
			stringAt(inst, "wuid"),
			stringAt(payload, "wuid"),
		)),
	)

	e.DisplayName = firstNonEmpty(
		stringAt(inst, "profileName"),
		stringAt(payload, "profileName"),
		stringAt(payload, "pushName"),
		stringAt(inst, "name"),
		stringAt(payload, "name"),
	)

	counts, ok := payload["_count"].(map[string]any)
	if !ok && inst != nil {
		counts, _ = inst["_count"].(map[string]any)
	}
	if counts != nil {
		stats := map[string]any{}
		if v, ok := counts["Message"]; ok {
			stats["messages"] = v
		}
		if v, ok := counts["Contact"]; ok {
			stats["contacts"] = v
		}
		if v, ok := counts["Chat"]; ok {
			stats["chats"] = v
		}
		if len(stats) > 0 {
			e.Stats = stats
		}
	}

	return e
}

// MetadataPatch converts the enrichment into an additive metadata patch
func (e Enrichment) MetadataPatch() map[string]any {
	patch := map[string]any{}
	if e.Phone != "" {
		patch["phone"] = e.Phone
	}
	if e.Stats != nil {
		patch["stats"] = e.Stats
	}
	return patch
}

func stringAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// jidLocalPart strips the server suffix from a WhatsApp JID
func jidLocalPart(jid string) string {
	if jid == "" {
		return ""
	}
	local, _, _ := strings.Cut(jid, "@")
	return local
}

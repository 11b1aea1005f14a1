// ABOUTME: Terminal persistence for a turn's messages
// ABOUTME: Decides one merged row vs two rows and normalizes parts on write

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// Reconciler writes a finished turn into the thread. History is the
// source of truth, so every write path goes through the same part
// normalization.
type Reconciler struct {
	store  store.Store
	logger *slog.Logger
}

// NewReconciler creates a reconciler over the given store
func NewReconciler(st store.Store) *Reconciler {
	return &Reconciler{
		store:  st,
		logger: slog.Default().With("component", "reconciler"),
	}
}

// TurnResult is what a completed turn hands to persistence
type TurnResult struct {
	UserMessage *store.Message
	Assistant   *store.Message
	// ImageBranch marks a synthesized-image turn: always two rows
	ImageBranch bool
	// AgentID, when set, marks an agent-driven turn
	AgentID string
}

// Persist writes the turn's rows. Image turns always persist the user
// row then the image row. Otherwise a response reusing the inbound
// message id collapses into one merged row; distinct ids become two
// rows. An agent-driven turn touches the agent's timestamp regardless
// of branch.
func (r *Reconciler) Persist(ctx context.Context, result *TurnResult) error {
	if result.AgentID != "" {
		if err := r.store.TouchAgent(ctx, result.AgentID); err != nil {
			r.logger.Warn("agent touch failed", "agent_id", result.AgentID, "error", err)
		}
	}

	user := result.UserMessage
	assistant := result.Assistant

	if result.ImageBranch {
		if err := r.save(ctx, user); err != nil {
			return err
		}
		return r.save(ctx, assistant)
	}

	if assistant != nil && user != nil && assistant.ID == user.ID {
		// Same-id response: one merged row with the response's parts
		merged := *assistant
		merged.ThreadID = user.ThreadID
		return r.save(ctx, &merged)
	}

	if user != nil {
		if err := r.save(ctx, user); err != nil {
			return err
		}
	}
	if assistant != nil {
		return r.save(ctx, assistant)
	}
	return nil
}

func (r *Reconciler) save(ctx context.Context, msg *store.Message) error {
	if msg == nil {
		return nil
	}
	msg.Parts = normalizeParts(msg.Parts)
	if err := r.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("persisting message %s: %w", msg.ID, err)
	}
	return nil
}

// normalizeParts prepares parts for storage: tool inputs and outputs
// are re-marshaled into stable JSON, stream-only step markers drop out,
// and empty text parts disappear.
func normalizeParts(parts []Part) []Part {
	normalized := make([]Part, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case store.PartTypeStepStart:
			continue
		case store.PartTypeText:
			if p.Text == "" {
				continue
			}
		case store.PartTypeTool:
			p.Input = stabilizeJSON(p.Input)
			p.Output = stabilizeJSON(p.Output)
		}
		normalized = append(normalized, p)
	}
	return normalized
}

// stabilizeJSON re-marshals a raw value so equivalent payloads persist
// byte-identically. Non-JSON input is wrapped as a JSON string.
func stabilizeJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		wrapped, _ := json.Marshal(string(raw))
		return wrapped
	}
	stable, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return stable
}

// Part aliases the store's part type for package-local readability
type Part = store.Part

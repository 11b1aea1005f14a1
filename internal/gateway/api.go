// ABOUTME: Chat endpoint streaming turn events to the client over SSE
// ABOUTME: Request DTOs and shared JSON/SSE response helpers

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/Bakhitov/crafty-gateway/internal/auth"
	"github.com/Bakhitov/crafty-gateway/internal/conversation"
	"github.com/Bakhitov/crafty-gateway/internal/imagegen"
	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	ThreadID  string       `json:"thread_id,omitempty"`
	MessageID string       `json:"message_id,omitempty"`
	Text      string       `json:"text,omitempty"`
	Parts     []store.Part `json:"parts,omitempty"`

	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	ToolChoice   string   `json:"tool_choice,omitempty"`
	Mentions     []string `json:"mentions,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`

	Image *ImageRequest `json:"image,omitempty"`
}

// ImageRequest selects the image synthesis branch for a turn.
type ImageRequest struct {
	Engine          string         `json:"engine,omitempty"`
	Size            string         `json:"size,omitempty"`
	AspectRatio     string         `json:"aspect_ratio,omitempty"`
	Style           string         `json:"style,omitempty"`
	Quality         string         `json:"quality,omitempty"`
	Model           string         `json:"model,omitempty"`
	ProviderOptions map[string]any `json:"provider_options,omitempty"`
}

// handleChat runs one turn and streams its events as SSE. The stream
// opens with a "started" event carrying the thread id, then relays turn
// events verbatim until the terminal finish or error event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" && len(req.Parts) == 0 {
		writeError(w, http.StatusBadRequest, "text or parts is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	parts := req.Parts
	if len(parts) == 0 {
		parts = []store.Part{{Type: store.PartTypeText, Text: req.Text}}
	}

	turn := &conversation.TurnRequest{
		ThreadID: threadID,
		UserID:   auth.UserIDFromContext(r.Context()),
		Message: store.Message{
			ID:       req.MessageID,
			ThreadID: threadID,
			Role:     store.RoleUser,
			Parts:    parts,
		},
		Provider:     req.Provider,
		Model:        req.Model,
		ToolChoice:   req.ToolChoice,
		Mentions:     req.Mentions,
		SystemPrompt: req.SystemPrompt,
	}
	if req.Image != nil {
		turn.ImageSettings = &imagegen.Settings{
			Engine:            req.Image.Engine,
			RequestedProvider: req.Provider,
			Size:              req.Image.Size,
			AspectRatio:       req.Image.AspectRatio,
			Style:             req.Image.Style,
			Quality:           req.Image.Quality,
			ImageModel:        req.Image.Model,
			ProviderOptions:   req.Image.ProviderOptions,
		}
	}

	events, err := s.turns.Run(r.Context(), turn)
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			writeError(w, http.StatusForbidden, "thread belongs to another user")
			return
		}
		s.logger.Error("failed to start turn", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	writeSSEEvent(w, "started", map[string]string{"thread_id": threadID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSEEvent(w, ev.Type, ev)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one named SSE event with a JSON payload.
func writeSSEEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

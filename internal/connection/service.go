// ABOUTME: Connection lifecycle service: provisioning, webhook and poll processing
// ABOUTME: Applies the status normalizer and additive metadata enrichment

package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Bakhitov/crafty-gateway/internal/auth"
	"github.com/Bakhitov/crafty-gateway/internal/bridge"
	"github.com/Bakhitov/crafty-gateway/internal/keyvault"
	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// Service owns connection rows and keeps their status in sync with the
// bridges. Webhook processing is fail-open: a malformed payload changes
// nothing and is never an error to the caller.
type Service struct {
	store      store.Store
	evolution  *bridge.EvolutionClient
	chatwoot   *bridge.ChatwootClient
	sealer     *keyvault.Sealer
	webhookURL string
	logger     *slog.Logger
}

// NewService creates a connection service. webhookURL is this gateway's
// public base URL for bridge callbacks; empty disables webhook
// registration.
func NewService(st store.Store, evo *bridge.EvolutionClient, cw *bridge.ChatwootClient, sealer *keyvault.Sealer, webhookURL string) *Service {
	return &Service{
		store:      st,
		evolution:  evo,
		chatwoot:   cw,
		sealer:     sealer,
		webhookURL: strings.TrimRight(webhookURL, "/"),
		logger:     slog.Default().With("component", "connection"),
	}
}

// ProvisionEvolution creates an Evolution instance and its connection
// row. The per-instance key comes back sealed in the row. A QR artifact
// in the create response starts the row at qr_required.
func (s *Service) ProvisionEvolution(ctx context.Context, userID, instanceName, displayName string) (*store.Connection, error) {
	if instanceName == "" {
		return nil, errors.New("instance name is required")
	}
	if displayName == "" {
		displayName = instanceName
	}

	result, err := s.evolution.CreateInstance(ctx, instanceName)
	if err != nil {
		return nil, fmt.Errorf("creating instance: %w", err)
	}

	sealedKey := ""
	if result.Hash != "" {
		sealedKey, err = s.sealer.SealCompact(result.Hash)
		if err != nil {
			return nil, fmt.Errorf("sealing instance key: %w", err)
		}
	}

	status := store.StatusConnecting
	if result.HasQR {
		status = store.StatusQRRequired
	} else if normalized, ok := NormalizeEvolutionState(result.Status); ok {
		status = normalized
	}

	conn := &store.Connection{
		ID:                    uuid.NewString(),
		UserID:                userID,
		Type:                  store.ConnectionTypeEvolution,
		DisplayName:           displayName,
		Status:                status,
		EvolutionInstanceName: instanceName,
		EvolutionAPIKey:       sealedKey,
		ProviderMetadata:      map[string]any{},
	}
	if err := s.store.CreateConnection(ctx, conn); err != nil {
		return nil, err
	}

	// Point the instance's events back at us, best effort
	if s.webhookURL != "" && result.Hash != "" {
		url := s.webhookURL + "/api/webhooks/evolution/" + conn.ID
		if err := s.evolution.SetWebhook(ctx, instanceName, result.Hash, url); err != nil {
			s.logger.Warn("webhook registration failed", "connection_id", conn.ID, "error", err)
		}
	}

	return conn, nil
}

// CreateChatwootConnection records a link to an existing Chatwoot inbox
func (s *Service) CreateChatwootConnection(ctx context.Context, userID, accountID, inboxID, displayName string) (*store.Connection, error) {
	if inboxID == "" {
		return nil, errors.New("inbox id is required")
	}
	if displayName == "" {
		displayName = "inbox " + inboxID
	}

	conn := &store.Connection{
		ID:                uuid.NewString(),
		UserID:            userID,
		Type:              store.ConnectionTypeChatwoot,
		DisplayName:       displayName,
		Status:            store.StatusConnecting,
		ChatwootAccountID: accountID,
		ChatwootInboxID:   inboxID,
		ProviderMetadata:  map[string]any{},
	}
	if err := s.store.CreateConnection(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Connect asks Evolution for a fresh pairing QR on an owned connection
func (s *Service) Connect(ctx context.Context, userID, connectionID string) (map[string]any, error) {
	conn, key, err := s.ownedEvolution(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}

	result, err := s.evolution.Connect(ctx, conn.EvolutionInstanceName, key)
	if err != nil {
		return nil, err
	}
	if result.HasQR {
		s.applyStatus(ctx, conn, store.StatusQRRequired)
	}
	return result.Raw, nil
}

// Delete tears down the external resource best-effort, then the row
func (s *Service) Delete(ctx context.Context, userID, connectionID string) error {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if err := auth.RequireOwner(auth.WithUserID(ctx, userID), conn.UserID); err != nil {
		return err
	}

	switch conn.Type {
	case store.ConnectionTypeEvolution:
		if key, err := s.instanceKey(conn); err == nil && conn.EvolutionInstanceName != "" {
			if err := s.evolution.DeleteInstance(ctx, conn.EvolutionInstanceName, key); err != nil {
				s.logger.Warn("instance teardown failed", "connection_id", conn.ID, "error", err)
			}
		}
	case store.ConnectionTypeChatwoot:
		if s.chatwoot != nil && conn.ChatwootInboxID != "" {
			if err := s.chatwoot.DeleteInbox(ctx, conn.ChatwootAccountID, conn.ChatwootInboxID); err != nil {
				s.logger.Warn("inbox teardown failed", "connection_id", conn.ID, "error", err)
			}
		}
	}

	return s.store.DeleteConnection(ctx, connectionID)
}

// ProcessEvolutionWebhook applies one Evolution webhook payload to a
// connection: status transition, metadata enrichment, display name.
// Nothing here errors out to the webhook caller.
func (s *Service) ProcessEvolutionWebhook(ctx context.Context, connectionID string, payload map[string]any) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		s.logger.Debug("webhook for unknown connection", "connection_id", connectionID)
		return
	}

	if status, ok := resolveEvolutionStatus(payload); ok {
		s.applyStatus(ctx, conn, status)
	}

	e := ExtractEnrichment(payload)
	if patch := e.MetadataPatch(); len(patch) > 0 {
		if err := s.store.MergeConnectionMetadata(ctx, conn.ID, patch); err != nil {
			s.logger.Warn("metadata merge failed", "connection_id", conn.ID, "error", err)
		}
	}
	if e.DisplayName != "" && e.DisplayName != conn.DisplayName {
		if err := s.store.UpdateConnectionDisplayName(ctx, conn.ID, e.DisplayName); err != nil {
			s.logger.Warn("display name update failed", "connection_id", conn.ID, "error", err)
		}
	}
}

// ProcessChatwootWebhook applies a Chatwoot lifecycle event's status
func (s *Service) ProcessChatwootWebhook(ctx context.Context, connectionID string, payload map[string]any) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return
	}

	event := firstNonEmpty(stringAt(payload, "event"), stringAt(payload, "name"))
	if status, ok := NormalizeChatwootEvent(event); ok {
		s.applyStatus(ctx, conn, status)
	}
}

// Poll reads the live connection state of every Evolution connection
// and applies it through the same normalizer the webhooks use.
func (s *Service) Poll(ctx context.Context) {
	conns, err := s.store.ListConnectionsByType(ctx, store.ConnectionTypeEvolution)
	if err != nil {
		s.logger.Warn("poll listing failed", "error", err)
		return
	}

	for _, conn := range conns {
		if err := s.pollConnection(ctx, conn); err != nil {
			s.logger.Debug("poll failed", "connection_id", conn.ID, "error", err)
		}
	}
}

func (s *Service) pollConnection(ctx context.Context, conn *store.Connection) error {
	if conn.EvolutionInstanceName == "" {
		return nil
	}
	key, err := s.instanceKey(conn)
	if err != nil {
		return err
	}

	raw, err := s.evolution.ConnectionState(ctx, conn.EvolutionInstanceName, key)
	if err != nil {
		return err
	}

	if status, ok := resolveEvolutionStatus(raw); ok {
		s.applyStatus(ctx, conn, status)
	}
	e := ExtractEnrichment(raw)
	if patch := e.MetadataPatch(); len(patch) > 0 {
		if err := s.store.MergeConnectionMetadata(ctx, conn.ID, patch); err != nil {
			return err
		}
	}
	if e.DisplayName != "" && e.DisplayName != conn.DisplayName {
		if err := s.store.UpdateConnectionDisplayName(ctx, conn.ID, e.DisplayName); err != nil {
			return err
		}
	}
	return nil
}

// applyStatus writes a status transition, skipping replays
func (s *Service) applyStatus(ctx context.Context, conn *store.Connection, status string) {
	if conn.Status == status {
		return
	}
	if err := s.store.UpdateConnectionStatus(ctx, conn.ID, status); err != nil {
		s.logger.Warn("status update failed", "connection_id", conn.ID, "error", err)
		return
	}
	s.logger.Info("connection status changed", "connection_id", conn.ID, "from", conn.Status, "to", status)
	conn.Status = status
}

func (s *Service) ownedEvolution(ctx context.Context, userID, connectionID string) (*store.Connection, string, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, "", err
	}
	if err := auth.RequireOwner(auth.WithUserID(ctx, userID), conn.UserID); err != nil {
		return nil, "", err
	}
	if conn.Type != store.ConnectionTypeEvolution || conn.EvolutionInstanceName == "" {
		return nil, "", errors.New("not an evolution connection")
	}
	key, err := s.instanceKey(conn)
	if err != nil {
		return nil, "", err
	}
	return conn, key, nil
}

func (s *Service) instanceKey(conn *store.Connection) (string, error) {
	if conn.EvolutionAPIKey == "" {
		return "", errors.New("connection has no instance key")
	}
	return s.sealer.OpenCompact(conn.EvolutionAPIKey)
}

// resolveEvolutionStatus extracts a canonical status from an Evolution
// payload: explicit state fields first, then a QR artifact, then the
// event name.
func resolveEvolutionStatus(payload map[string]any) (string, bool) {
	inst, _ := payload["instance"].(map[string]any)

	rawState := firstNonEmpty(
		stringAt(inst, "state"),
		stringAt(payload, "state"),
		stringAt(inst, "connectionStatus"),
		stringAt(payload, "connectionStatus"),
		stringAt(payload, "status"),
	)
	if status, ok := NormalizeEvolutionState(rawState); ok {
		return status, true
	}

	if _, hasQR := payload["qrcode"]; hasQR {
		return store.StatusQRRequired, true
	}

	event := firstNonEmpty(stringAt(payload, "event"), stringAt(payload, "type"))
	return NormalizeEvolutionEvent(event)
}

// ABOUTME: Outbound client for the Evolution WhatsApp API
// ABOUTME: Instance lifecycle, connection state reads and webhook registration

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// EvolutionClient talks to an Evolution API server. The admin key
// authorizes instance creation; per-instance keys (the hash Evolution
// hands back on create) authorize everything else.
type EvolutionClient struct {
	baseURL  string
	adminKey string
	client   *http.Client
	logger   *slog.Logger
}

// NewEvolutionClient creates a client for the given Evolution server.
// A baseURL without a scheme is assumed to be https.
func NewEvolutionClient(baseURL, adminKey string) *EvolutionClient {
	if baseURL != "" && !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	return &EvolutionClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		adminKey: adminKey,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default().With("component", "evolution"),
	}
}

// InstanceResult is the useful subset of Evolution's instance responses.
// Raw holds the full payload for metadata enrichment.
type InstanceResult struct {
	Hash   string
	Status string
	HasQR  bool
	Raw    map[string]any
}

// CreateInstance provisions a WhatsApp instance. The returned Hash is
// the per-instance API key for all later calls.
func (c *EvolutionClient) CreateInstance(ctx context.Context, instanceName string) (*InstanceResult, error) {
	payload := map[string]any{
		"instanceName": instanceName,
		"integration":  "WHATSAPP-BAILEYS",
		"qrcode":       true,
	}

	raw, err := c.do(ctx, http.MethodPost, "/instance/create", c.adminKey, payload)
	if err != nil {
		return nil, err
	}

	result := &InstanceResult{Raw: raw}
	if hash, ok := raw["hash"].(string); ok {
		result.Hash = hash
	}
	if inst, ok := raw["instance"].(map[string]any); ok {
		if status, ok := inst["status"].(string); ok {
			result.Status = status
		}
	}
	_, result.HasQR = raw["qrcode"]

	c.logger.Info("created instance", "instance", instanceName, "status", result.Status, "qr", result.HasQR)
	return result, nil
}

// Connect asks the instance for a (new) pairing QR code
func (c *EvolutionClient) Connect(ctx context.Context, instanceName, instanceKey string) (*InstanceResult, error) {
	raw, err := c.do(ctx, http.MethodGet, "/instance/connect/"+url.PathEscape(instanceName), instanceKey, nil)
	if err != nil {
		return nil, err
	}
	result := &InstanceResult{Raw: raw}
	_, result.HasQR = raw["qrcode"]
	return result, nil
}

// ConnectionState reads the instance's live connection state. The raw
// payload goes to the status normalizer unchanged.
func (c *EvolutionClient) ConnectionState(ctx context.Context, instanceName, instanceKey string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/instance/connectionState/"+url.PathEscape(instanceName), instanceKey, nil)
}

// DeleteInstance tears down the external instance
func (c *EvolutionClient) DeleteInstance(ctx context.Context, instanceName, instanceKey string) error {
	_, err := c.do(ctx, http.MethodDelete, "/instance/delete/"+url.PathEscape(instanceName), instanceKey, nil)
	return err
}

// SetWebhook points the instance's status and message events at us
func (c *EvolutionClient) SetWebhook(ctx context.Context, instanceName, instanceKey, webhookURL string) error {
	payload := map[string]any{
		"webhook": map[string]any{
			"enabled":  true,
			"url":      webhookURL,
			"byEvents": false,
			"base64":   true,
		},
	}
	_, err := c.do(ctx, http.MethodPost, "/webhook/set/"+url.PathEscape(instanceName), instanceKey, payload)
	return err
}

func (c *EvolutionClient) do(ctx context.Context, method, path, apiKey string, payload any) (map[string]any, error) {
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
	if apiKey != "" {
		req.Header.Set("apikey", apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling evolution: %w", err)
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
		// Some endpoints answer with empty or non-object bodies
		_ = json.Unmarshal(respBody, &raw)
	}
	return raw, nil
}

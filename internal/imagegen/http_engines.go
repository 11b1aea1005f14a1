// ABOUTME: HTTP call adapters for the fal, luma and replicate image engines
// ABOUTME: Each posts a generation request and downloads the resulting image

package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	falBaseURL       = "https://fal.run"
	lumaBaseURL      = "https://api.lumalabs.ai/dream-machine/v1"
	replicateBaseURL = "https://api.replicate.com/v1"

	imageHTTPTimeout = 2 * time.Minute
	lumaPollInterval = 2 * time.Second
	lumaMaxPolls     = 60
)

// httpJSON posts a JSON payload and decodes the JSON response into out
func httpJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// downloadAsBase64 fetches an image URL and returns (mediaType, base64)
func downloadAsBase64(ctx context.Context, client *http.Client, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("building download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("image download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", "", fmt.Errorf("reading image: %w", err)
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/png"
	}
	return mediaType, base64.StdEncoding.EncodeToString(data), nil
}

// falEngine synthesizes through fal's synchronous run endpoint
type falEngine struct {
	baseURL string
	client  *http.Client
}

func newFalEngine(baseURL string) *falEngine {
	if baseURL == "" {
		baseURL = falBaseURL
	}
	return &falEngine{baseURL: baseURL, client: &http.Client{Timeout: imageHTTPTimeout}}
}

func (e *falEngine) name() string               { return EngineFal }
func (e *falEngine) credentialProvider() string { return "fal" }

func (e *falEngine) generate(ctx context.Context, key, prompt string, s Settings) (*Result, error) {
	payload := map[string]any{"prompt": prompt}
	if s.AspectRatio != "" {
		payload["aspect_ratio"] = s.AspectRatio
	}
	applyProviderOptions(payload, s.ProviderOptions)

	var resp struct {
		Images []struct {
			URL         string `json:"url"`
			ContentType string `json:"content_type"`
		} `json:"images"`
	}
	err := httpJSON(ctx, e.client, http.MethodPost, e.baseURL+"/"+s.ImageModel,
		map[string]string{"Authorization": "Key " + key}, payload, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 || resp.Images[0].URL == "" {
		return nil, errors.New("upstream returned no image data")
	}

	mediaType, b64, err := downloadAsBase64(ctx, e.client, resp.Images[0].URL)
	if err != nil {
		return nil, err
	}
	if resp.Images[0].ContentType != "" {
		mediaType = resp.Images[0].ContentType
	}
	return &Result{MediaType: mediaType, Base64: b64}, nil
}

// lumaEngine synthesizes through Luma's async generation API, polling
// until the generation completes.
type lumaEngine struct {
	baseURL string
	client  *http.Client
}

func newLumaEngine(baseURL string) *lumaEngine {
	if baseURL == "" {
		baseURL = lumaBaseURL
	}
	return &lumaEngine{baseURL: baseURL, client: &http.Client{Timeout: imageHTTPTimeout}}
}

func (e *lumaEngine) name() string               { return EngineLuma }
func (e *lumaEngine) credentialProvider() string { return "luma" }

type lumaGeneration struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	FailureReason string `json:"failure_reason"`
	Assets        struct {
		Image string `json:"image"`
	} `json:"assets"`
}

func (e *lumaEngine) generate(ctx context.Context, key, prompt string, s Settings) (*Result, error) {
	headers := map[string]string{"Authorization": "Bearer " + key}

	payload := map[string]any{"prompt": prompt, "model": s.ImageModel}
	if s.AspectRatio != "" {
		payload["aspect_ratio"] = s.AspectRatio
	}
	applyProviderOptions(payload, s.ProviderOptions)

	var gen lumaGeneration
	err := httpJSON(ctx, e.client, http.MethodPost, e.baseURL+"/generations/image", headers, payload, &gen)
	if err != nil {
		return nil, err
	}

	for i := 0; i < lumaMaxPolls; i++ {
		switch gen.State {
		case "completed":
			if gen.Assets.Image == "" {
				return nil, errors.New("upstream returned no image data")
			}
			mediaType, b64, err := downloadAsBase64(ctx, e.client, gen.Assets.Image)
			if err != nil {
				return nil, err
			}
			return &Result{MediaType: mediaType, Base64: b64}, nil
		case "failed":
			return nil, fmt.Errorf("generation failed: %s", gen.FailureReason)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lumaPollInterval):
		}

		if err := httpJSON(ctx, e.client, http.MethodGet, e.baseURL+"/generations/"+gen.ID, headers, nil, &gen); err != nil {
			return nil, err
		}
	}

	return nil, errors.New("generation timed out")
}

// replicateEngine synthesizes through Replicate's blocking predictions API
type replicateEngine struct {
	baseURL string
	client  *http.Client
}

func newReplicateEngine(baseURL string) *replicateEngine {
	if baseURL == "" {
		baseURL = replicateBaseURL
	}
	return &replicateEngine{baseURL: baseURL, client: &http.Client{Timeout: imageHTTPTimeout}}
}

func (e *replicateEngine) name() string               { return EngineReplicate }
func (e *replicateEngine) credentialProvider() string { return "replicate" }

func (e *replicateEngine) generate(ctx context.Context, key, prompt string, s Settings) (*Result, error) {
	input := map[string]any{"prompt": prompt}
	if s.Size != "" {
		input["size"] = s.Size
	}
	if s.AspectRatio != "" {
		input["aspect_ratio"] = s.AspectRatio
	}
	applyProviderOptions(input, s.ProviderOptions)

	var resp struct {
		Status string          `json:"status"`
		Error  string          `json:"error"`
		Output json.RawMessage `json:"output"`
	}
	err := httpJSON(ctx, e.client, http.MethodPost,
		e.baseURL+"/models/"+s.ImageModel+"/predictions",
		map[string]string{
			"Authorization": "Bearer " + key,
			"Prefer":        "wait",
		}, map[string]any{"input": input}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("prediction failed: %s", resp.Error)
	}

	// Output is either a URL string or a list of URL strings
	var url string
	var urls []string
	if json.Unmarshal(resp.Output, &urls) == nil && len(urls) > 0 {
		url = urls[0]
	} else if json.Unmarshal(resp.Output, &url) != nil || url == "" {
		return nil, errors.New("upstream returned no image data")
	}

	mediaType, b64, err := downloadAsBase64(ctx, e.client, url)
	if err != nil {
		return nil, err
	}
	return &Result{MediaType: mediaType, Base64: b64}, nil
}

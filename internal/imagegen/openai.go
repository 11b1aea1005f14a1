// ABOUTME: OpenAI image engine: gpt-image-1 and the dall-e models
// ABOUTME: Accepts size plus style (dall-e-3 only) and mapped quality (dall-e only)

package imagegen

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type openAIEngine struct{}

func newOpenAIEngine() *openAIEngine { return &openAIEngine{} }

func (e *openAIEngine) name() string               { return EngineOpenAI }
func (e *openAIEngine) credentialProvider() string { return "openai" }

func (e *openAIEngine) generate(ctx context.Context, key, prompt string, s Settings) (*Result, error) {
	client := openai.NewClient(key)

	req := openai.ImageRequest{
		Model:  s.ImageModel,
		Prompt: prompt,
		N:      1,
	}
	if s.Size != "" {
		req.Size = s.Size
	}
	// Style is a dall-e-3 concept; other models reject it
	if s.Style != "" && s.ImageModel == "dall-e-3" {
		req.Style = s.Style
	}
	if q := mapQuality(s.Quality, s.ImageModel); q != "" {
		req.Quality = q
	}
	// gpt-image-1 always returns base64; dall-e needs asking
	if s.ImageModel == "dall-e-3" || s.ImageModel == "dall-e-2" {
		req.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}
	applyOpenAIImageOptions(&req, s.ProviderOptions)

	resp, err := client.CreateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("upstream returned no image data")
	}

	return &Result{MediaType: "image/png", Base64: resp.Data[0].B64JSON}, nil
}

// applyOpenAIImageOptions maps caller provider options onto the typed
// request fields the SDK exposes. Options are applied after the settings
// mapping so they win on overlap.
func applyOpenAIImageOptions(req *openai.ImageRequest, opts map[string]any) {
	if v, ok := optString(opts, "background"); ok {
		req.Background = v
	}
	if v, ok := optString(opts, "moderation"); ok {
		req.Moderation = v
	}
	if v, ok := optString(opts, "output_format"); ok {
		req.OutputFormat = v
	}
	if v, ok := optInt(opts, "output_compression"); ok {
		req.OutputCompression = v
	}
	if v, ok := optString(opts, "quality"); ok {
		req.Quality = v
	}
	if v, ok := optString(opts, "user"); ok {
		req.User = v
	}
}

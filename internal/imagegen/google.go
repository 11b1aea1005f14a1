// ABOUTME: Google image engine over the Gen AI SDK's Imagen API
// ABOUTME: Accepts aspect ratio only

package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

type googleEngine struct{}

func newGoogleEngine() *googleEngine { return &googleEngine{} }

func (e *googleEngine) name() string               { return EngineGoogle }
func (e *googleEngine) credentialProvider() string { return "google" }

func (e *googleEngine) generate(ctx context.Context, key, prompt string, s Settings) (*Result, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	config := &genai.GenerateImagesConfig{NumberOfImages: 1}
	if s.AspectRatio != "" {
		config.AspectRatio = s.AspectRatio
	}
	applyGoogleImageOptions(config, s.ProviderOptions)

	resp, err := client.Models.GenerateImages(ctx, s.ImageModel, prompt, config)
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, errors.New("upstream returned no image data")
	}

	img := resp.GeneratedImages[0].Image
	mediaType := img.MIMEType
	if mediaType == "" {
		mediaType = "image/png"
	}

	return &Result{
		MediaType: mediaType,
		Base64:    base64.StdEncoding.EncodeToString(img.ImageBytes),
	}, nil
}

// applyGoogleImageOptions maps caller provider options onto the typed
// Imagen config fields. Options are applied after the settings mapping
// so they win on overlap.
func applyGoogleImageOptions(config *genai.GenerateImagesConfig, opts map[string]any) {
	if v, ok := optString(opts, "negative_prompt"); ok {
		config.NegativePrompt = v
	}
	if v, ok := optInt(opts, "seed"); ok {
		seed := int32(v)
		config.Seed = &seed
	}
	if v, ok := optFloat(opts, "guidance_scale"); ok {
		scale := float32(v)
		config.GuidanceScale = &scale
	}
	if v, ok := optString(opts, "safety_filter_level"); ok {
		config.SafetyFilterLevel = genai.SafetyFilterLevel(v)
	}
	if v, ok := optString(opts, "person_generation"); ok {
		config.PersonGeneration = genai.PersonGeneration(v)
	}
	if v, ok := optString(opts, "output_mime_type"); ok {
		config.OutputMIMEType = v
	}
	if v, ok := optInt(opts, "output_compression_quality"); ok {
		q := int32(v)
		config.OutputCompressionQuality = &q
	}
	if v, ok := optString(opts, "image_size"); ok {
		config.ImageSize = v
	}
	if v, ok := optBool(opts, "add_watermark"); ok {
		config.AddWatermark = v
	}
	if v, ok := optBool(opts, "enhance_prompt"); ok {
		config.EnhancePrompt = v
	}
}

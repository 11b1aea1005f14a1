// ABOUTME: Tests for engine resolution and parameter mapping rules
// ABOUTME: Covers auto-resolution, quality mapping and markdown output

package imagegen

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestResolveEngine(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     string
	}{
		{"explicit engine wins", Settings{Engine: EngineFal, RequestedProvider: "google"}, EngineFal},
		{"auto with google provider", Settings{Engine: EngineAuto, RequestedProvider: "google"}, EngineGoogle},
		{"auto with openai provider", Settings{Engine: EngineAuto, RequestedProvider: "openai"}, EngineOpenAI},
		{"auto with toolless provider falls back", Settings{Engine: EngineAuto, RequestedProvider: "anthropic"}, EngineOpenAI},
		{"empty engine acts as auto", Settings{RequestedProvider: "google"}, EngineGoogle},
		{"empty everything", Settings{}, EngineOpenAI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveEngine(tt.settings))
		})
	}
}

func TestMapQuality(t *testing.T) {
	assert.Equal(t, "standard", mapQuality("low", "dall-e-3"))
	assert.Equal(t, "standard", mapQuality("medium", "dall-e-2"))
	assert.Equal(t, "hd", mapQuality("high", "dall-e-3"))
	assert.Equal(t, "hd", mapQuality("auto", "dall-e-3"))
	assert.Equal(t, "", mapQuality("weird", "dall-e-3"))

	// quality is a dall-e concept only
	assert.Equal(t, "", mapQuality("high", "gpt-image-1"))
}

func TestResultMarkdown(t *testing.T) {
	r := &Result{MediaType: "image/png", Base64: "aGVsbG8="}
	assert.Equal(t, "![image](data:image/png;base64,aGVsbG8=)", r.Markdown())
}

func TestApplyProviderOptions_OverridesPayload(t *testing.T) {
	payload := map[string]any{"prompt": "a cat", "aspect_ratio": "1:1"}
	applyProviderOptions(payload, map[string]any{"aspect_ratio": "16:9", "steps": 4})

	assert.Equal(t, "a cat", payload["prompt"])
	assert.Equal(t, "16:9", payload["aspect_ratio"])
	assert.Equal(t, 4, payload["steps"])
}

func TestApplyOpenAIImageOptions(t *testing.T) {
	req := openai.ImageRequest{Model: "gpt-image-1", Prompt: "a cat", N: 1}
	applyOpenAIImageOptions(&req, map[string]any{
		"background":         "transparent",
		"moderation":         "low",
		"output_format":      "webp",
		"output_compression": float64(80), // JSON numbers decode as float64
		"user":               "user-1",
	})

	assert.Equal(t, "transparent", req.Background)
	assert.Equal(t, "low", req.Moderation)
	assert.Equal(t, "webp", req.OutputFormat)
	assert.Equal(t, 80, req.OutputCompression)
	assert.Equal(t, "user-1", req.User)
	assert.Equal(t, "a cat", req.Prompt)
}

func TestApplyGoogleImageOptions(t *testing.T) {
	config := &genai.GenerateImagesConfig{NumberOfImages: 1, AspectRatio: "1:1"}
	applyGoogleImageOptions(config, map[string]any{
		"negative_prompt":   "blurry",
		"seed":              float64(42),
		"guidance_scale":    7.5,
		"person_generation": "DONT_ALLOW",
	})

	assert.Equal(t, "blurry", config.NegativePrompt)
	require.NotNil(t, config.Seed)
	assert.Equal(t, int32(42), *config.Seed)
	require.NotNil(t, config.GuidanceScale)
	assert.Equal(t, float32(7.5), *config.GuidanceScale)
	assert.Equal(t, genai.PersonGenerationDontAllow, config.PersonGeneration)
	assert.Equal(t, "1:1", config.AspectRatio)
}

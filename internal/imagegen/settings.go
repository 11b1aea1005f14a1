// ABOUTME: Image synthesis settings, engine names and parameter mapping rules
// ABOUTME: Each engine accepts only its own parameter subset; the rest are ignored

package imagegen

import "errors"

// Engine names
const (
	EngineAuto      = "auto"
	EngineOpenAI    = "openai"
	EngineGoogle    = "google"
	EngineFal       = "fal"
	EngineLuma      = "luma"
	EngineReplicate = "replicate"
)

// Default sub-model per engine when none is requested
var defaultImageModels = map[string]string{
	EngineOpenAI:    "gpt-image-1",
	EngineGoogle:    "imagen-3.0-generate-002",
	EngineFal:       "fal-ai/flux/dev",
	EngineLuma:      "photon-1",
	EngineReplicate: "black-forest-labs/flux-schnell",
}

// Package errors
var (
	// ErrNotImplemented is returned for engine names with no table entry
	ErrNotImplemented = errors.New("image engine not implemented")
	// ErrNoCredential means neither a vault record nor a process default
	// exists for the engine's provider.
	ErrNoCredential = errors.New("no credential for image engine")
)

// Settings carries the caller's image request parameters. Engines
// consume only the fields they accept.
type Settings struct {
	// Engine is an engine name or "auto"
	Engine string
	// RequestedProvider is the chat model's provider, used to resolve
	// "auto" (unresolvable providers fall back to openai).
	RequestedProvider string
	Size              string
	AspectRatio       string
	Style             string
	Quality           string
	ImageModel        string
	ProviderOptions   map[string]any
}

// Result is one synthesized image
type Result struct {
	Engine    string
	Model     string
	MediaType string
	Base64    string
}

// Markdown wraps the image as an inline data-URI markdown image, the
// single complete text part the turn emits.
func (r *Result) Markdown() string {
	return "![image](data:" + r.MediaType + ";base64," + r.Base64 + ")"
}

// mapQuality maps the caller's quality vocabulary onto the upstream's.
// Only the dall-e models understand quality at all.
func mapQuality(quality, model string) string {
	if model != "dall-e-3" && model != "dall-e-2" {
		return ""
	}
	switch quality {
	case "low", "medium":
		return "standard"
	case "high", "auto":
		return "hd"
	default:
		return ""
	}
}

// applyProviderOptions overlays caller-supplied provider options onto an
// engine's JSON payload. Options are applied last so callers can reach
// upstream parameters Settings has no field for.
func applyProviderOptions(payload, opts map[string]any) {
	for k, v := range opts {
		payload[k] = v
	}
}

// optString and friends read a provider option with JSON-decoded types
// in mind: numbers arrive as float64, but Go callers may pass int.
func optString(opts map[string]any, key string) (string, bool) {
	s, ok := opts[key].(string)
	return s, ok
}

func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func optBool(opts map[string]any, key string) (bool, bool) {
	b, ok := opts[key].(bool)
	return b, ok
}

// resolveEngine maps "auto" onto the requested provider's engine.
// Providers without an image engine fall back to openai.
func resolveEngine(s Settings) string {
	if s.Engine != EngineAuto && s.Engine != "" {
		return s.Engine
	}
	switch s.RequestedProvider {
	case EngineGoogle:
		return EngineGoogle
	default:
		return EngineOpenAI
	}
}

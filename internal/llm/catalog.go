// ABOUTME: Static model catalog: providers, default models and capability flags
// ABOUTME: The resolver and the image dispatcher both consult this table

package llm

// Provider names
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGoogle     = "google"
	ProviderXAI        = "xai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// ModelInfo describes one catalog entry
type ModelInfo struct {
	Provider      string
	Name          string
	SupportsTools bool
	// ImageCapable marks chat models that can also emit images
	ImageCapable bool
	// ImageOnly marks entries that only synthesize images; a chat turn
	// addressed at one of these is routed to the image dispatcher.
	ImageOnly bool
}

// DefaultModels maps each provider to its fallback chat model
var DefaultModels = map[string]string{
	ProviderOpenAI:     "gpt-4o",
	ProviderAnthropic:  "claude-sonnet-4-20250514",
	ProviderGoogle:     "gemini-2.0-flash",
	ProviderXAI:        "grok-3",
	ProviderOpenRouter: "openai/gpt-4o",
	ProviderOllama:     "llama3.1",
}

var catalog = []ModelInfo{
	{Provider: ProviderOpenAI, Name: "gpt-4o", SupportsTools: true},
	{Provider: ProviderOpenAI, Name: "gpt-4o-mini", SupportsTools: true},
	{Provider: ProviderOpenAI, Name: "gpt-4.1", SupportsTools: true},
	{Provider: ProviderOpenAI, Name: "o3-mini", SupportsTools: true},
	{Provider: ProviderOpenAI, Name: "gpt-image-1", ImageOnly: true},
	{Provider: ProviderOpenAI, Name: "dall-e-3", ImageOnly: true},
	{Provider: ProviderOpenAI, Name: "dall-e-2", ImageOnly: true},

	{Provider: ProviderAnthropic, Name: "claude-sonnet-4-20250514", SupportsTools: true},
	{Provider: ProviderAnthropic, Name: "claude-opus-4-20250514", SupportsTools: true},
	{Provider: ProviderAnthropic, Name: "claude-3-5-haiku-20241022", SupportsTools: true},

	{Provider: ProviderGoogle, Name: "gemini-2.0-flash", SupportsTools: true},
	{Provider: ProviderGoogle, Name: "gemini-2.5-pro", SupportsTools: true},
	{Provider: ProviderGoogle, Name: "gemini-2.0-flash-preview-image-generation", SupportsTools: false, ImageCapable: true},
	{Provider: ProviderGoogle, Name: "imagen-3.0-generate-002", ImageOnly: true},

	{Provider: ProviderXAI, Name: "grok-3", SupportsTools: true},
	{Provider: ProviderXAI, Name: "grok-3-mini", SupportsTools: true},

	{Provider: ProviderOpenRouter, Name: "openai/gpt-4o", SupportsTools: true},
	{Provider: ProviderOpenRouter, Name: "anthropic/claude-sonnet-4", SupportsTools: true},
	{Provider: ProviderOpenRouter, Name: "meta-llama/llama-3.3-70b-instruct", SupportsTools: false},

	{Provider: ProviderOllama, Name: "llama3.1", SupportsTools: true},
	{Provider: ProviderOllama, Name: "qwen2.5", SupportsTools: true},
}

// Lookup returns the catalog entry for (provider, model). Models absent
// from the table get a permissive entry: tool support is assumed for
// providers whose default models support tools.
func Lookup(provider, model string) ModelInfo {
	for _, info := range catalog {
		if info.Provider == provider && info.Name == model {
			return info
		}
	}
	return ModelInfo{
		Provider:      provider,
		Name:          model,
		SupportsTools: provider != ProviderOllama && provider != ProviderOpenRouter,
	}
}

// KnownProvider reports whether the provider has a catalog presence
func KnownProvider(provider string) bool {
	_, ok := DefaultModels[provider]
	return ok
}

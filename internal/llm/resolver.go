// ABOUTME: ModelResolver: turns (user, provider, model) into a credentialed Model
// ABOUTME: Credential chain is user vault record first, process default second

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Bakhitov/crafty-gateway/internal/keyvault"
)

const defaultOllamaBaseURL = "http://localhost:11434/v1"

// Resolver builds Model handles with the effective credential for the
// requesting user.
type Resolver struct {
	vault         *keyvault.Service
	ollamaBaseURL string
	logger        *slog.Logger
}

// NewResolver creates a resolver. ollamaBaseURL may be empty to use the
// local default.
func NewResolver(vault *keyvault.Service, ollamaBaseURL string) *Resolver {
	if ollamaBaseURL == "" {
		ollamaBaseURL = defaultOllamaBaseURL
	}
	return &Resolver{
		vault:         vault,
		ollamaBaseURL: ollamaBaseURL,
		logger:        slog.Default().With("component", "llm"),
	}
}

// Resolve returns a Model for (provider, model) credentialed for the
// user. An empty model selects the provider's default. Returns
// ErrUnknownProvider or ErrNoCredential.
func (r *Resolver) Resolve(ctx context.Context, userID, provider, model string) (Model, error) {
	if !KnownProvider(provider) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if model == "" {
		model = DefaultModels[provider]
	}

	// Ollama is local and unauthenticated; no credential lookup
	if provider == ProviderOllama {
		return newOpenAIModel(ProviderOllama, model, "ollama", r.ollamaBaseURL), nil
	}

	key, err := r.vault.Resolve(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, keyvault.ErrNoKey) {
			return nil, fmt.Errorf("%w: %s", ErrNoCredential, provider)
		}
		return nil, err
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIModel(ProviderOpenAI, model, key, ""), nil
	case ProviderXAI:
		return newOpenAIModel(ProviderXAI, model, key, xaiBaseURL), nil
	case ProviderOpenRouter:
		return newOpenAIModel(ProviderOpenRouter, model, key, openRouterBaseURL), nil
	case ProviderAnthropic:
		return newAnthropicModel(model, key), nil
	case ProviderGoogle:
		return newGoogleModel(ctx, model, key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

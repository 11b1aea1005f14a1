// ABOUTME: ImageSynthesisDispatcher: engine strategy table plus credential chain
// ABOUTME: Resolves engine and key, delegates generation, returns a data-URI result

package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Bakhitov/crafty-gateway/internal/keyvault"
)

// engine is one entry in the strategy table
type engine interface {
	// name is the engine's table key
	name() string
	// credentialProvider is the vault provider the engine bills against
	credentialProvider() string
	// generate synthesizes one image with the given upstream key
	generate(ctx context.Context, key, prompt string, s Settings) (*Result, error)
}

// Dispatcher routes image requests to the configured engines
type Dispatcher struct {
	vault   *keyvault.Service
	engines map[string]engine
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher with the full engine table
func NewDispatcher(vault *keyvault.Service) *Dispatcher {
	d := &Dispatcher{
		vault:   vault,
		engines: make(map[string]engine),
		logger:  slog.Default().With("component", "imagegen"),
	}
	for _, e := range []engine{
		newOpenAIEngine(),
		newGoogleEngine(),
		newFalEngine(""),
		newLumaEngine(""),
		newReplicateEngine(""),
	} {
		d.engines[e.name()] = e
	}
	return d
}

// Generate synthesizes one image for the user. Engine "auto" resolves
// to the requested provider's engine; an unknown engine name is a hard
// error, never a silent fallback.
func (d *Dispatcher) Generate(ctx context.Context, userID, prompt string, s Settings) (*Result, error) {
	engineName := resolveEngine(s)

	e, ok := d.engines[engineName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, engineName)
	}

	key, err := d.vault.Resolve(ctx, userID, e.credentialProvider())
	if err != nil {
		if errors.Is(err, keyvault.ErrNoKey) {
			return nil, fmt.Errorf("%w: %s", ErrNoCredential, engineName)
		}
		return nil, err
	}

	if s.ImageModel == "" {
		s.ImageModel = defaultImageModels[engineName]
	}

	d.logger.Info("synthesizing image", "engine", engineName, "model", s.ImageModel)
	result, err := e.generate(ctx, key, prompt, s)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", engineName, err)
	}
	result.Engine = engineName
	result.Model = s.ImageModel
	return result, nil
}

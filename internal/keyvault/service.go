// ABOUTME: Credential vault service over the store's sealed secret records
// ABOUTME: Resolves keys via user vault record first, process default second

package keyvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Bakhitov/crafty-gateway/internal/store"
)

// ErrNoKey is returned when neither a vault record nor a process
// default exists for the requested provider.
var ErrNoKey = errors.New("no credential available")

// SetOptions carries optional fields for a stored credential
type SetOptions struct {
	Label     string
	BaseURL   string
	Scopes    []string
	ExpiresAt *time.Time
}

// Service is the credential vault: sealed records at rest, a TTL
// decrypt cache in front, and process-wide defaults as fallback.
type Service struct {
	store    store.Store
	sealer   *Sealer
	cache    *decryptCache
	defaults map[string]string
	logger   *slog.Logger
}

// NewService creates a vault service. defaults maps provider name to a
// process-wide fallback key (empty values are ignored).
func NewService(st store.Store, secret string, defaults map[string]string) (*Service, error) {
	sealer, err := NewSealer(secret)
	if err != nil {
		return nil, err
	}

	d := make(map[string]string, len(defaults))
	for provider, key := range defaults {
		if key != "" {
			d[provider] = key
		}
	}

	return &Service{
		store:    st,
		sealer:   sealer,
		cache:    newDecryptCache(),
		defaults: d,
		logger:   slog.Default().With("component", "keyvault"),
	}, nil
}

// Set seals a credential and stores it as the active record for the
// provider, deactivating any prior record.
func (s *Service) Set(ctx context.Context, userID, provider, key string, opts SetOptions) error {
	if key == "" {
		return errors.New("credential value is empty")
	}

	sealed, err := s.sealer.Seal(key)
	if err != nil {
		return fmt.Errorf("sealing credential: %w", err)
	}

	secret := &store.Secret{
		ID:        uuid.NewString(),
		UserID:    userID,
		Provider:  provider,
		Cipher:    sealed.Cipher,
		IV:        sealed.IV,
		Tag:       sealed.Tag,
		Version:   sealed.Version,
		Label:     opts.Label,
		BaseURL:   opts.BaseURL,
		Scopes:    opts.Scopes,
		ExpiresAt: opts.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveSecret(ctx, secret); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	s.cache.invalidate(userID, provider)
	s.logger.Info("stored credential", "user_id", userID, "provider", provider)
	return nil
}

// Get returns the user's decrypted vault credential for a provider.
// Returns ErrNoKey when absent. A record that fails to decrypt is
// treated as absent, not as an error.
func (s *Service) Get(ctx context.Context, userID, provider string) (string, error) {
	if value, found, ok := s.cache.get(userID, provider); ok {
		if !found {
			return "", ErrNoKey
		}
		return value, nil
	}

	secret, err := s.store.GetActiveSecret(ctx, userID, provider)
	if errors.Is(err, store.ErrNotFound) {
		s.cache.put(userID, provider, "", false)
		return "", ErrNoKey
	}
	if err != nil {
		return "", fmt.Errorf("loading credential: %w", err)
	}

	if secret.ExpiresAt != nil && time.Now().After(*secret.ExpiresAt) {
		s.cache.put(userID, provider, "", false)
		return "", ErrNoKey
	}

	key, err := s.sealer.Open(&SealedKey{
		Cipher:  secret.Cipher,
		IV:      secret.IV,
		Tag:     secret.Tag,
		Version: secret.Version,
	})
	if err != nil {
		// Undecryptable records (rotated secret, corruption) are absent
		s.logger.Warn("credential decrypt failed, treating as absent",
			"user_id", userID, "provider", provider, "error", err)
		s.cache.put(userID, provider, "", false)
		return "", ErrNoKey
	}

	s.cache.put(userID, provider, key, true)
	return key, nil
}

// Resolve returns the effective credential for a provider: the user's
// active vault record if present, otherwise the process default.
func (s *Service) Resolve(ctx context.Context, userID, provider string) (string, error) {
	key, err := s.Get(ctx, userID, provider)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNoKey) {
		return "", err
	}

	if def, ok := s.defaults[provider]; ok {
		return def, nil
	}
	return "", ErrNoKey
}

// Delete removes a credential record and drops its cache entry
func (s *Service) Delete(ctx context.Context, userID, provider, id string) error {
	if err := s.store.DeleteSecret(ctx, id); err != nil {
		return err
	}
	s.cache.invalidate(userID, provider)
	return nil
}

// List returns the user's credential records. Ciphertext fields are
// cleared so callers can't leak sealed material.
func (s *Service) List(ctx context.Context, userID string) ([]*store.Secret, error) {
	secrets, err := s.store.ListSecrets(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, secret := range secrets {
		secret.Cipher = ""
		secret.IV = ""
		secret.Tag = ""
	}
	return secrets, nil
}

// ABOUTME: AES-256-GCM sealing and opening of credential records
// ABOUTME: Master key is derived from the configured secret via HKDF-SHA256

package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// SealVersion tags records so the format can evolve
	SealVersion = "v1"

	ivLength  = 12
	tagLength = 16
)

// ErrSealFormat is returned when a record's encoded fields are malformed
var ErrSealFormat = errors.New("malformed sealed record")

// SealedKey is the encrypted form of one credential, with the GCM tag
// held separately from the ciphertext. All fields are base64.
type SealedKey struct {
	Cipher  string
	IV      string
	Tag     string
	Version string
}

// Sealer encrypts and decrypts credential values with a derived master key
type Sealer struct {
	key []byte
}

// NewSealer derives a 32-byte master key from the configured secret
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("key encryption secret is empty")
	}

	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("crafty-gateway/keyvault"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}

	return &Sealer{key: key}, nil
}

// Seal encrypts a plaintext credential with a fresh random IV
func (s *Sealer) Seal(plaintext string) (*SealedKey, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating IV: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return &SealedKey{
		Cipher:  base64.StdEncoding.EncodeToString(ciphertext),
		IV:      base64.StdEncoding.EncodeToString(iv),
		Tag:     base64.StdEncoding.EncodeToString(tag),
		Version: SealVersion,
	}, nil
}

// Open decrypts a sealed credential. Any tampering with the ciphertext,
// IV or tag fails authentication and returns an error.
func (s *Sealer) Open(sealed *SealedKey) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Cipher)
	if err != nil {
		return "", fmt.Errorf("%w: cipher: %v", ErrSealFormat, err)
	}
	iv, err := base64.StdEncoding.DecodeString(sealed.IV)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrSealFormat, err)
	}
	tag, err := base64.StdEncoding.DecodeString(sealed.Tag)
	if err != nil {
		return "", fmt.Errorf("%w: tag: %v", ErrSealFormat, err)
	}
	if len(iv) != ivLength || len(tag) != tagLength {
		return "", ErrSealFormat
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("opening sealed record: %w", err)
	}
	return string(plaintext), nil
}

// SealCompact seals a value into a single JSON string, for callers that
// store the sealed record in one column.
func (s *Sealer) SealCompact(plaintext string) (string, error) {
	sealed, err := s.Seal(plaintext)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(sealed)
	if err != nil {
		return "", fmt.Errorf("encoding sealed record: %w", err)
	}
	return string(b), nil
}

// OpenCompact reverses SealCompact
func (s *Sealer) OpenCompact(compact string) (string, error) {
	var sealed SealedKey
	if err := json.Unmarshal([]byte(compact), &sealed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealFormat, err)
	}
	return s.Open(&sealed)
}

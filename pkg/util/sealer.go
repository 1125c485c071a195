package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrUnseal = errors.New("cannot unseal value")

// Sealer encrypts credentials at rest with NaCl secretbox. Output is
// base64(nonce || box). An empty plaintext seals to an empty string.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the box key from an operator secret.
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("sealing secret must be at least 16 bytes, got %d", len(secret))
	}
	return &Sealer{key: sha256.Sum256([]byte(secret))}, nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < 24 {
		return "", ErrUnseal
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", ErrUnseal
	}
	return string(plain), nil
}

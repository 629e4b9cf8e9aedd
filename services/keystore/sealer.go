package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sealInfo = "license-controlplane/keystore/seed/v1"

// Sealer encrypts private seeds at rest with AES-256-GCM. The kid is bound as
// additional data so a sealed seed cannot be moved to another key row.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("sealing secret must be at least 32 bytes")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(kid string, seed []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce gen: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, seed, []byte(kid))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Open(kid, sealed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("invalid sealed seed: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("invalid sealed seed")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	seed, err := s.aead.Open(nil, nonce, ciphertext, []byte(kid))
	if err != nil {
		return nil, fmt.Errorf("open sealed seed: %w", err)
	}
	return seed, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

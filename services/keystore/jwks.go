package keystore

import (
	"context"
	"crypto/ed25519"

	"license-controlplane/pkg/errutil"

	"github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"
)

type PublicKeyView struct {
	Kid          string `json:"kid"`
	PublicKeyB64 string `json:"publicKey"`
	Algorithm    string `json:"algorithm"`
}

// PublicKey resolves the public half of kid for desktop clients.
func (s *Service) PublicKey(ctx context.Context, kid string) (*PublicKeyView, error) {
	key, err := s.findByKid(ctx, kid)
	if err != nil {
		return nil, err
	}
	return &PublicKeyView{
		Kid:          key.Kid,
		PublicKeyB64: key.PublicKeyB64,
		Algorithm:    string(jose.EdDSA),
	}, nil
}

// JWKS renders every stored public key as an OKP/Ed25519 JSON Web Key.
func (s *Service) JWKS(ctx context.Context) (*jose.JSONWebKeySet, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		pub, err := DecodePublicKey(k.PublicKeyB64)
		if err != nil {
			logger(ctx).Warn("skipping malformed public key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		jwk := jose.JSONWebKey{
			Key:       ed25519.PublicKey(pub),
			KeyID:     k.Kid,
			Algorithm: string(jose.EdDSA),
			Use:       "sig",
		}
		if !jwk.Valid() {
			return nil, errutil.Internal("invalid jwk", nil)
		}
		set.Keys = append(set.Keys, jwk)
	}
	return set, nil
}

package license

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// VerifyResult is never an error: callers branch on Valid and Error. Payload
// is set when the signature checked out, including for expired licenses.
type VerifyResult struct {
	Valid   bool      `json:"valid"`
	Payload *Payload  `json:"payload,omitempty"`
	Error   ErrorKind `json:"error,omitempty"`
}

// Err returns the sentinel matching Error, nil for a valid result.
func (r VerifyResult) Err() error {
	switch r.Error {
	case KindNone:
		return nil
	case KindMalformedPayload:
		return ErrMalformedPayload
	case KindKeyNotFound:
		return ErrKeyNotFound
	case KindSignatureInvalid:
		return ErrSignatureInvalid
	case KindExpired:
		return ErrExpired
	default:
		return fmt.Errorf("license verification failed: %s", r.Error)
	}
}

type Verifier struct {
	keys  KeyStore
	clock Clock
	skew  time.Duration
}

func NewVerifier(keys KeyStore, clock Clock, skew time.Duration) *Verifier {
	return &Verifier{keys: keys, clock: clock, skew: skew}
}

// Verify resolves the public key through the key store by the payload kid. A
// deleted key reports KeyNotFound even when the signature is correct.
func (v *Verifier) Verify(ctx context.Context, a Artifact) VerifyResult {
	payload, canonical, ok := decodeArtifactPayload(a)
	if !ok {
		return VerifyResult{Error: KindMalformedPayload}
	}

	pub, err := v.keys.LookupPublicKeyByKid(ctx, payload.Kid)
	if err != nil {
		if KindOf(err) != KindKeyNotFound {
			logger(ctx).Error("public key lookup failed", zap.String("kid", payload.Kid), zap.Error(err))
		}
		return VerifyResult{Error: KindKeyNotFound}
	}

	return v.check(payload, canonical, a.Signature, pub)
}

// VerifyWithPublicKey checks the artifact against an explicitly supplied key
// and never consults the key store. It serves licenses whose signing key has
// since been deleted.
func (v *Verifier) VerifyWithPublicKey(ctx context.Context, a Artifact, pub ed25519.PublicKey) VerifyResult {
	payload, canonical, ok := decodeArtifactPayload(a)
	if !ok {
		return VerifyResult{Error: KindMalformedPayload}
	}
	if len(pub) != ed25519.PublicKeySize {
		return VerifyResult{Error: KindSignatureInvalid}
	}
	return v.check(payload, canonical, a.Signature, pub)
}

func decodeArtifactPayload(a Artifact) (Payload, []byte, bool) {
	payload, err := Decode(a.Payload)
	if err != nil {
		return Payload{}, nil, false
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return Payload{}, nil, false
	}
	return payload, canonical, true
}

func (v *Verifier) check(payload Payload, canonical []byte, signatureB64 string, pub ed25519.PublicKey) VerifyResult {
	sig, err := base64.StdEncoding.Strict().DecodeString(signatureB64)
	if err != nil || strings.ContainsAny(signatureB64, "\r\n") || len(sig) != ed25519.SignatureSize {
		return VerifyResult{Error: KindSignatureInvalid}
	}
	if !ed25519.Verify(pub, canonical, sig) {
		return VerifyResult{Error: KindSignatureInvalid}
	}

	if v.clock.Now().After(payload.Expires.Add(v.skew)) {
		return VerifyResult{Payload: &payload, Error: KindExpired}
	}
	return VerifyResult{Valid: true, Payload: &payload}
}

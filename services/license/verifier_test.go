package license

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"license-controlplane/pkg/errutil"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// memKeys is an in-memory KeyStore.
type memKeys struct {
	keys map[string]ed25519.PrivateKey
}

func newMemKeys(t *testing.T, kids ...string) *memKeys {
	t.Helper()
	m := &memKeys{keys: map[string]ed25519.PrivateKey{}}
	for _, kid := range kids {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		m.keys[kid] = priv
	}
	return m
}

func (m *memKeys) LookupPublicKeyByKid(ctx context.Context, kid string) (ed25519.PublicKey, error) {
	priv, ok := m.keys[kid]
	if !ok {
		return nil, errutil.NotFound("no key", ErrKeyNotFound)
	}
	return priv.Public().(ed25519.PublicKey), nil
}

func (m *memKeys) SignWithKid(ctx context.Context, kid string, msg []byte) ([]byte, error) {
	priv, ok := m.keys[kid]
	if !ok {
		return nil, errutil.NotFound("no key", ErrKeyNotFound)
	}
	return ed25519.Sign(priv, msg), nil
}

func (m *memKeys) public(kid string) ed25519.PublicKey {
	return m.keys[kid].Public().(ed25519.PublicKey)
}

func signArtifact(t *testing.T, keys *memKeys, p Payload) Artifact {
	t.Helper()
	canonical, err := Canonicalize(p)
	require.NoError(t, err)
	sig, err := keys.SignWithKid(context.Background(), p.Kid, canonical)
	require.NoError(t, err)
	return Artifact{
		Payload:   base64.StdEncoding.EncodeToString(canonical),
		Signature: base64.StdEncoding.EncodeToString(sig),
	}
}

func TestVerifyValid(t *testing.T) {
	keys := newMemKeys(t, "root-v1")
	p := samplePayload()
	v := NewVerifier(keys, &fixedClock{now: p.IssuedAt.Add(time.Hour)}, 0)

	res := v.Verify(context.Background(), signArtifact(t, keys, p))
	require.True(t, res.Valid)
	require.Equal(t, KindNone, res.Error)
	require.Equal(t, p, *res.Payload)
}

func TestVerifyDetectsTampering(t *testing.T) {
	keys := newMemKeys(t, "root-v1")
	p := samplePayload()
	v := NewVerifier(keys, &fixedClock{now: p.IssuedAt}, 0)
	a := signArtifact(t, keys, p)

	flip := func(s string, i int) string {
		b := []byte(s)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		return string(b)
	}

	for i := range a.Payload {
		res := v.Verify(context.Background(), Artifact{Payload: flip(a.Payload, i), Signature: a.Signature})
		require.False(t, res.Valid, "payload byte %d", i)
		require.Contains(t, []ErrorKind{KindMalformedPayload, KindSignatureInvalid, KindKeyNotFound}, res.Error)

		res = v.VerifyWithPublicKey(context.Background(), Artifact{Payload: flip(a.Payload, i), Signature: a.Signature}, keys.public("root-v1"))
		require.False(t, res.Valid, "payload byte %d", i)
		require.Contains(t, []ErrorKind{KindMalformedPayload, KindSignatureInvalid}, res.Error)
	}

	for i := range a.Signature {
		res := v.Verify(context.Background(), Artifact{Payload: a.Payload, Signature: flip(a.Signature, i)})
		require.False(t, res.Valid, "signature byte %d", i)
		require.Equal(t, KindSignatureInvalid, res.Error)
		require.Nil(t, res.Payload)
	}
}

func TestVerifyRejectsSignatureEncodings(t *testing.T) {
	keys := newMemKeys(t, "root-v1")
	p := samplePayload()
	v := NewVerifier(keys, &fixedClock{now: p.IssuedAt}, 0)
	a := signArtifact(t, keys, p)

	raw, err := base64.StdEncoding.DecodeString(a.Signature)
	require.NoError(t, err)

	for name, sig := range map[string]string{
		"empty":     "",
		"url":       base64.URLEncoding.EncodeToString(raw),
		"unpadded":  base64.RawStdEncoding.EncodeToString(raw),
		"wrapped":   a.Signature[:40] + "\r\n" + a.Signature[40:],
		"truncated": base64.StdEncoding.EncodeToString(raw[:63]),
	} {
		res := v.Verify(context.Background(), Artifact{Payload: a.Payload, Signature: sig})
		require.Equal(t, KindSignatureInvalid, res.Error, name)
	}
}

func TestVerifyRevokedKid(t *testing.T) {
	keys := newMemKeys(t, "root-v1")
	p := samplePayload()
	v := NewVerifier(keys, &fixedClock{now: p.IssuedAt}, 0)
	a := signArtifact(t, keys, p)
	pub := keys.public("root-v1")

	delete(keys.keys, "root-v1")

	res := v.Verify(context.Background(), a)
	require.False(t, res.Valid)
	require.Equal(t, KindKeyNotFound, res.Error)

	res = v.VerifyWithPublicKey(context.Background(), a, pub)
	require.True(t, res.Valid)
	require.Equal(t, p, *res.Payload)
}

func TestVerifyWrongPublicKey(t *testing.T) {
	keys := newMemKeys(t, "root-v1", "other")
	p := samplePayload()
	v := NewVerifier(keys, &fixedClock{now: p.IssuedAt}, 0)
	a := signArtifact(t, keys, p)

	res := v.VerifyWithPublicKey(context.Background(), a, keys.public("other"))
	require.Equal(t, KindSignatureInvalid, res.Error)

	res = v.VerifyWithPublicKey(context.Background(), a, ed25519.PublicKey{1, 2, 3})
	require.Equal(t, KindSignatureInvalid, res.Error)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	keys := newMemKeys(t, "root-v1")
	p := samplePayload()
	a := signArtifact(t, keys, p)
	clock := &fixedClock{}
	v := NewVerifier(keys, clock, 0)

	clock.now = p.Expires.Add(time.Second)
	res := v.Verify(context.Background(), a)
	require.False(t, res.Valid)
	require.Equal(t, KindExpired, res.Error)
	require.Equal(t, p, *res.Payload)

	clock.now = p.Expires
	require.True(t, v.Verify(context.Background(), a).Valid)

	clock.now = p.Expires.Add(-time.Second)
	require.True(t, v.Verify(context.Background(), a).Valid)
}

func TestVerifyClockSkew(t *testing.T) {
	keys := newMemKeys(t, "root-v1")
	p := samplePayload()
	a := signArtifact(t, keys, p)
	clock := &fixedClock{now: p.Expires.Add(30 * time.Second)}
	v := NewVerifier(keys, clock, time.Minute)

	require.True(t, v.Verify(context.Background(), a).Valid)

	clock.now = p.Expires.Add(61 * time.Second)
	require.Equal(t, KindExpired, v.Verify(context.Background(), a).Error)
}

func TestVerifyResultErr(t *testing.T) {
	require.NoError(t, VerifyResult{Valid: true}.Err())

	for _, kind := range []ErrorKind{KindMalformedPayload, KindKeyNotFound, KindSignatureInvalid, KindExpired} {
		err := VerifyResult{Error: kind}.Err()
		require.Error(t, err, kind)
		require.Equal(t, kind, KindOf(err))
	}
	require.ErrorIs(t, VerifyResult{Error: KindExpired}.Err(), ErrExpired)
	require.ErrorIs(t, VerifyResult{Error: KindSignatureInvalid}.Err(), ErrSignatureInvalid)
}

type failingKeys struct{ *memKeys }

func (failingKeys) LookupPublicKeyByKid(context.Context, string) (ed25519.PublicKey, error) {
	return nil, errutil.Internal("failed to find key", errors.New("database is locked"))
}

func TestVerifyLookupFailureReportsKeyNotFound(t *testing.T) {
	keys := newMemKeys(t, "root-v1")
	a := signArtifact(t, keys, samplePayload())

	v := NewVerifier(failingKeys{keys}, &fixedClock{now: samplePayload().IssuedAt}, 0)
	res := v.Verify(context.Background(), a)
	require.False(t, res.Valid)
	require.Equal(t, KindKeyNotFound, res.Error)
	require.Nil(t, res.Payload)
}

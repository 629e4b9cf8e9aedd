package keystore

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"license-controlplane/pkg/errutil"

	"go.uber.org/zap"
)

// Import stores externally generated key pairs. Existing kids get their key
// material replaced, new kids are created. A pair without a private part is
// verification-only. Each entry is handled on its own; failures are reported
// per index.
func (s *Service) Import(ctx context.Context, keys []ImportKey) (*ImportResult, error) {
	if len(keys) == 0 {
		return nil, errutil.BadRequest("at least one key is required", nil)
	}

	res := &ImportResult{Total: len(keys)}
	for i, in := range keys {
		outcome, err := s.importOne(ctx, in)
		if err != nil {
			logger(ctx).Warn("failed to import key", zap.Int("index", i), zap.String("kid", in.Kid), zap.Error(err))
			res.Errors = append(res.Errors, ImportError{Index: i, Kid: in.Kid, Message: importMessage(err)})
			continue
		}
		switch outcome {
		case importCreated:
			res.Imported++
		case importUpdated:
			res.Updated++
		case importSkipped:
			res.Skipped++
		}
	}

	logger(ctx).Info("keys imported",
		zap.Int("imported", res.Imported),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", len(res.Errors)),
	)
	return res, nil
}

type importOutcome int

const (
	importCreated importOutcome = iota
	importUpdated
	importSkipped
)

func importMessage(err error) string {
	var be errutil.BaseError
	if errors.As(err, &be) && be.Code != errutil.StatusInternal {
		return be.Message
	}
	return "internal error"
}

func (s *Service) importOne(ctx context.Context, in ImportKey) (importOutcome, error) {
	if err := validateKid(in.Kid); err != nil {
		return 0, err
	}

	pub, err := DecodePublicKey(in.PublicKeyB64)
	if err != nil {
		return 0, err
	}

	var sealed *string
	if strings.TrimSpace(in.PrivateKeyB64) != "" {
		seed, err := seedFromPrivateKey(in.PrivateKeyB64, pub)
		if err != nil {
			return 0, err
		}
		enc, err := s.sealer.Seal(in.Kid, seed)
		wipe(seed)
		if err != nil {
			return 0, errutil.Internal("failed to seal seed", err)
		}
		sealed = &enc
	}

	pubB64 := base64.StdEncoding.EncodeToString(pub)

	lock := s.locks.get(in.Kid)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.FindOne(ctx, &Key{Kid: in.Kid})
	if err != nil {
		return 0, errutil.Internal("failed to find key", err)
	}

	if existing == nil {
		key := &Key{
			ID:            s.node.Generate().String(),
			Kid:           in.Kid,
			PublicKeyB64:  pubB64,
			PrivateKeyEnc: sealed,
			Notes:         normalizeNotes(in.Notes),
		}
		if err := s.repo.Create(ctx, key); err != nil {
			return 0, errutil.Internal("failed to create key", err)
		}
		return importCreated, nil
	}

	if existing.PublicKeyB64 == pubB64 && sealed == nil && in.Notes == nil {
		return importSkipped, nil
	}

	values := map[string]any{
		"public_key_b64":  pubB64,
		"private_key_enc": sealed,
	}
	if in.Notes != nil {
		values["notes"] = normalizeNotes(in.Notes)
	}
	if existing.PublicKeyB64 == pubB64 && sealed == nil {
		// keep the stored private part when only notes change
		delete(values, "private_key_enc")
	}

	if _, err := s.repo.Update(ctx, existing.ID, values); err != nil {
		return 0, errutil.Internal("failed to update key", err)
	}
	s.cache.evict(in.Kid)
	return importUpdated, nil
}

// seedFromPrivateKey accepts a 32-byte seed or a 64-byte secret key (seed
// followed by public key) and checks it derives pub.
func seedFromPrivateKey(b64 string, pub ed25519.PublicKey) ([]byte, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, errutil.BadRequest("private key is not valid base64", ErrInvalidKey)
	}
	defer wipe(raw)

	var seed []byte
	switch len(raw) {
	case ed25519.SeedSize:
		seed = bytes.Clone(raw)
	case ed25519.PrivateKeySize:
		seed = bytes.Clone(raw[:ed25519.SeedSize])
	default:
		return nil, errutil.BadRequest(
			fmt.Sprintf("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw)),
			ErrInvalidKey,
		)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	defer wipe(priv)

	derived := priv.Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, pub) || (len(raw) == ed25519.PrivateKeySize && !bytes.Equal(raw[ed25519.SeedSize:], pub)) {
		wipe(seed)
		return nil, errutil.BadRequest("private key does not match public key", ErrInvalidKey)
	}

	return seed, nil
}

package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/db/option"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxKidLength = 255

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	repo    repository.Repository[Key]
	sealer  *Sealer
	cache   *publicKeyCache
	locks   kidLocks
	entropy io.Reader
	timeout time.Duration
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) (*Service, error) {
	sealer, err := NewSealer([]byte(p.Config.SecretAES))
	if err != nil {
		return nil, err
	}

	timeout := p.Config.License.EntropyTimeout
	if timeout <= 0 {
		timeout = config.DefaultEntropyTimeout
	}

	return &Service{
		db:      p.DB,
		node:    p.Node,
		repo:    repository.ProvideStore[Key](p.DB),
		sealer:  sealer,
		cache:   newPublicKeyCache(time.Now),
		entropy: rand.Reader,
		timeout: timeout,
	}, nil
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx).SpanContext()
	return zap.L().With(
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)
}

func validateKid(kid string) error {
	if strings.TrimSpace(kid) == "" {
		return errutil.BadRequest("kid is required", ErrInvalidKid)
	}
	if len(kid) > maxKidLength {
		return errutil.BadRequest(fmt.Sprintf("kid must be at most %d characters", maxKidLength), ErrInvalidKid)
	}
	return nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil || *notes == "" {
		return nil
	}
	return notes
}

func keyNotFound(kid string) error {
	return errutil.NotFound(fmt.Sprintf("no key found with kid %q", kid), ErrKeyNotFound)
}

func notFound(id string) error {
	return errutil.NotFound(fmt.Sprintf("key %s not found", id), ErrNotFound)
}

// newSeed reads an Ed25519 seed from the entropy source, giving up after the
// configured timeout instead of blocking the request.
func (s *Service) newSeed(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		seed []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		seed := make([]byte, ed25519.SeedSize)
		_, err := io.ReadFull(s.entropy, seed)
		ch <- result{seed: seed, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, errutil.Internal("failed to read entropy", res.err)
		}
		return res.seed, nil
	case <-ctx.Done():
		return nil, errutil.Timeout("entropy source timed out", ctx.Err())
	}
}

// Generate creates a key pair for kid. The unique index on kid is the
// uniqueness check, so concurrent calls yield exactly one success.
func (s *Service) Generate(ctx context.Context, kid string, notes *string) (*KeyView, error) {
	zapLog := logger(ctx).With(zap.String("kid", kid))

	if err := validateKid(kid); err != nil {
		return nil, err
	}

	seed, err := s.newSeed(ctx)
	if err != nil {
		zapLog.Error("failed to generate seed", zap.Error(err))
		return nil, err
	}
	defer wipe(seed)

	priv := ed25519.NewKeyFromSeed(seed)
	defer wipe(priv)
	pub := priv.Public().(ed25519.PublicKey)

	sealed, err := s.sealer.Seal(kid, seed)
	if err != nil {
		zapLog.Error("failed to seal seed", zap.Error(err))
		return nil, errutil.Internal("failed to generate key", err)
	}

	key := &Key{
		ID:            s.node.Generate().String(),
		Kid:           kid,
		PublicKeyB64:  base64.StdEncoding.EncodeToString(pub),
		PrivateKeyEnc: &sealed,
		Notes:         normalizeNotes(notes),
	}

	if err := s.repo.Create(ctx, key); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			zapLog.Warn("kid already exists")
			return nil, errutil.Conflict(fmt.Sprintf("kid %q already exists", kid), ErrDuplicateKid)
		}
		zapLog.Error("failed to create key", zap.Error(err))
		return nil, errutil.Internal("failed to create key", err)
	}

	zapLog.Info("key generated", zap.String("id", key.ID))
	return key.View(), nil
}

func (s *Service) List(ctx context.Context) ([]*KeyView, error) {
	keys, err := s.repo.Find(ctx, &Key{}, option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
	if err != nil {
		logger(ctx).Error("failed to list keys", zap.Error(err))
		return nil, errutil.Internal("failed to list keys", err)
	}

	out := make([]*KeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.View())
	}
	return out, nil
}

func (s *Service) find(ctx context.Context, id string) (*Key, error) {
	if id == "" {
		return nil, notFound(id)
	}
	key, err := s.repo.FindOne(ctx, &Key{ID: id})
	if err != nil {
		logger(ctx).Error("failed to find key", zap.String("id", id), zap.Error(err))
		return nil, errutil.Internal("failed to find key", err)
	}
	if key == nil {
		return nil, notFound(id)
	}
	return key, nil
}

func (s *Service) Get(ctx context.Context, id string) (*KeyView, error) {
	key, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return key.View(), nil
}

func (s *Service) UpdateNotes(ctx context.Context, id string, notes *string) (*KeyView, error) {
	key, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	key.Notes = normalizeNotes(notes)
	if _, err := s.repo.Update(ctx, id, map[string]any{"notes": key.Notes}); err != nil {
		logger(ctx).Error("failed to update key notes", zap.String("id", id), zap.Error(err))
		return nil, errutil.Internal("failed to update key", err)
	}

	return s.Get(ctx, id)
}

// Delete hard-deletes the key including its sealed seed. It waits for signs in
// flight under the same kid; later signs and lookups report ErrKeyNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	key, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	lock := s.locks.get(key.Kid)
	lock.Lock()
	defer lock.Unlock()

	n, err := s.repo.Delete(ctx, &Key{ID: id})
	if err != nil {
		logger(ctx).Error("failed to delete key", zap.String("id", id), zap.Error(err))
		return errutil.Internal("failed to delete key", err)
	}
	s.cache.evict(key.Kid)
	if n == 0 {
		return notFound(id)
	}

	logger(ctx).Info("key deleted", zap.String("id", id), zap.String("kid", key.Kid))
	return nil
}

func (s *Service) findByKid(ctx context.Context, kid string) (*Key, error) {
	if kid == "" {
		return nil, keyNotFound(kid)
	}
	key, err := s.repo.FindOne(ctx, &Key{Kid: kid})
	if err != nil {
		logger(ctx).Error("failed to find key by kid", zap.String("kid", kid), zap.Error(err))
		return nil, errutil.Internal("failed to find key", err)
	}
	if key == nil {
		return nil, keyNotFound(kid)
	}
	return key, nil
}

func (s *Service) LookupPublicKeyByKid(ctx context.Context, kid string) (ed25519.PublicKey, error) {
	lock := s.locks.get(kid)
	lock.RLock()
	defer lock.RUnlock()

	return s.cache.get(ctx, kid, func(ctx context.Context) (ed25519.PublicKey, error) {
		key, err := s.findByKid(ctx, kid)
		if err != nil {
			return nil, err
		}
		return DecodePublicKey(key.PublicKeyB64)
	})
}

// SignWithKid signs msg with the private key of kid. The opened seed and the
// expanded key are wiped before returning.
func (s *Service) SignWithKid(ctx context.Context, kid string, msg []byte) ([]byte, error) {
	lock := s.locks.get(kid)
	lock.RLock()
	defer lock.RUnlock()

	key, err := s.findByKid(ctx, kid)
	if err != nil {
		signatures.WithLabelValues("key_not_found").Inc()
		return nil, err
	}
	if key.PrivateKeyEnc == nil {
		signatures.WithLabelValues("verify_only").Inc()
		return nil, errutil.NotFound(fmt.Sprintf("key %q has no private key", kid), ErrKeyNotFound)
	}

	seed, err := s.sealer.Open(key.Kid, *key.PrivateKeyEnc)
	if err != nil {
		signatures.WithLabelValues("error").Inc()
		logger(ctx).Error("failed to open sealed seed", zap.String("kid", kid), zap.Error(err))
		return nil, errutil.Internal("failed to sign", err)
	}
	defer wipe(seed)

	priv := ed25519.NewKeyFromSeed(seed)
	defer wipe(priv)

	signatures.WithLabelValues("ok").Inc()
	return ed25519.Sign(priv, msg), nil
}

// DecodePublicKey parses a standard base64 Ed25519 public key.
func DecodePublicKey(b64 string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, errutil.BadRequest("public key is not valid base64", ErrInvalidKey)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errutil.BadRequest(fmt.Sprintf("public key must be %d bytes", ed25519.PublicKeySize), ErrInvalidKey)
	}
	return ed25519.PublicKey(raw), nil
}

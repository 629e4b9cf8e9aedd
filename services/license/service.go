package license

import (
	"context"
	"errors"
	"path"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/db/pagination"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/sequence"
	"license-controlplane/services/keystore"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx).SpanContext()
	return zap.L().With(
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)
}

// Service is the operator surface over issuance, verification and the
// license records.
type Service struct {
	db       *gorm.DB
	repo     Repository
	store    ObjectStore
	issuer   *Issuer
	verifier *Verifier
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Keys   *keystore.Service
	Seq    sequence.Generator
	Store  ObjectStore `optional:"true"`
	Clock  Clock       `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	clock := p.Clock
	if clock == nil {
		clock = SystemClock
	}
	return newService(p.DB, p.Node, p.Config, p.Keys, p.Seq, p.Store, clock)
}

func newService(db *gorm.DB, node *snowflake.Node, cfg *config.Config, keys KeyStore, seq sequence.Generator, store ObjectStore, clock Clock) *Service {
	repo := NewRepository(db)

	maxDays := cfg.License.MaxValidityDays
	if maxDays < 1 {
		maxDays = config.DefaultMaxValidityDays
	}

	return &Service{
		db:    db,
		repo:  repo,
		store: store,
		issuer: &Issuer{
			db:              db,
			repo:            repo,
			keys:            keys,
			store:           store,
			seq:             seq,
			node:            node,
			clock:           clock,
			maxValidityDays: maxDays,
			artifactPrefix:  cfg.License.ArtifactPrefix,
		},
		verifier: NewVerifier(keys, clock, cfg.License.ClockSkew),
	}
}

func (s *Service) Sign(ctx context.Context, req IssueRequest) (*Issued, error) {
	return s.issuer.Issue(ctx, req)
}

func (s *Service) Verify(ctx context.Context, a Artifact) VerifyResult {
	return logVerification(ctx, s.verifier.Verify(ctx, a))
}

// VerifyWithPublicKey parses publicKeyB64 and verifies without the key store.
func (s *Service) VerifyWithPublicKey(ctx context.Context, a Artifact, publicKeyB64 string) (VerifyResult, error) {
	pub, err := keystore.DecodePublicKey(publicKeyB64)
	if err != nil {
		return VerifyResult{}, err
	}
	return logVerification(ctx, s.verifier.VerifyWithPublicKey(ctx, a, pub)), nil
}

// rejectArtifact reports a license file that could not be parsed.
func (s *Service) rejectArtifact(ctx context.Context, err error) VerifyResult {
	logger(ctx).Info("license file rejected", zap.Error(err))
	return VerifyResult{Error: KindOf(err)}
}

func logVerification(ctx context.Context, res VerifyResult) VerifyResult {
	if err := res.Err(); err != nil {
		fields := []zap.Field{zap.Error(err)}
		if res.Payload != nil {
			fields = append(fields, zap.String("kid", res.Payload.Kid), zap.String("fingerprint_id", res.Payload.Fingerprint.FingerprintID))
		}
		logger(ctx).Info("license verification failed", fields...)
	}
	return res
}

type ListResult struct {
	Licenses []*Record           `json:"licenses"`
	PageInfo *pagination.PageInfo `json:"pageInfo"`
}

func (s *Service) List(ctx context.Context, page pagination.Pagination) (*ListResult, error) {
	rows, info, err := s.repo.List(ctx, page)
	if err != nil {
		if KindOf(err) == KindInvalidRequest {
			return nil, err
		}
		logger(ctx).Error("failed to list licenses", zap.Error(err))
		return nil, errutil.Internal("failed to list licenses", err)
	}
	return &ListResult{Licenses: rows, PageInfo: info}, nil
}

type Detail struct {
	License  *Record  `json:"license"`
	Artifact Artifact `json:"artifact"`
	Payload  *Payload `json:"payload,omitempty"`
}

// Get returns the record with its artifact and, when it still decodes, the
// payload.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &Detail{License: rec, Artifact: rec.Artifact()}
	if p, err := Decode(rec.PayloadB64); err == nil {
		detail.Payload = &p
	} else {
		logger(ctx).Warn("stored payload does not decode", zap.String("id", id), zap.Error(err))
	}
	return detail, nil
}

func (s *Service) get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		logger(ctx).Error("failed to get license", zap.String("id", id), zap.Error(err))
		return nil, errutil.Internal("failed to get license", err)
	}
	return rec, nil
}

type Download struct {
	Filename string
	Data     []byte
}

// Download returns the artifact file and counts the download. The stored
// object is preferred; the record is the fallback when the object is gone.
func (s *Service) Download(ctx context.Context, id string) (*Download, error) {
	zapLog := logger(ctx).With(zap.String("id", id))

	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	var data []byte
	if rec.ObjectKey != "" && s.store != nil {
		data, err = s.store.Get(ctx, rec.ObjectKey)
		if err != nil {
			zapLog.Warn("artifact object unavailable, rendering from record", zap.String("object_key", rec.ObjectKey), zap.Error(err))
			data = nil
		}
	}
	if data == nil {
		if data, err = rec.Artifact().MarshalFile(); err != nil {
			return nil, errutil.Internal("failed to render license file", err)
		}
	}

	if err := s.repo.IncrementDownloadCount(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		zapLog.Error("failed to count download", zap.Error(err))
		return nil, errutil.Internal("failed to download license", err)
	}

	filename := ObjectKey("", rec.Customer, rec.ID)
	if rec.ObjectKey != "" {
		filename = path.Base(rec.ObjectKey)
	}
	return &Download{Filename: filename, Data: data}, nil
}

// Delete removes the record and its artifact object. Already distributed
// artifacts are unaffected.
func (s *Service) Delete(ctx context.Context, id string) error {
	zapLog := logger(ctx).With(zap.String("id", id))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		rec, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		if rec.ObjectKey == "" || s.store == nil {
			return nil
		}
		if err := s.store.Remove(ctx, rec.ObjectKey); err != nil && !errors.Is(err, ErrObjectNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		zapLog.Error("failed to delete license", zap.Error(err))
		return errutil.Internal("failed to delete license", err)
	}

	zapLog.Info("license deleted")
	return nil
}

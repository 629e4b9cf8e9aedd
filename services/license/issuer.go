package license

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// KeyStore is what issuance and verification need from the key store.
type KeyStore interface {
	LookupPublicKeyByKid(ctx context.Context, kid string) (ed25519.PublicKey, error)
	SignWithKid(ctx context.Context, kid string, msg []byte) ([]byte, error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var SystemClock Clock = systemClock{}

type IssueRequest struct {
	Kid           string  `json:"kid"`
	Customer      string  `json:"customer"`
	Edition       string  `json:"edition"`
	ValidityDays  int     `json:"validityDays"`
	Seats         int     `json:"seats"`
	FingerprintID string  `json:"fingerprintId"`
	Notes         *string `json:"notes"`
}

type Issued struct {
	Record   *Record  `json:"license"`
	Artifact Artifact `json:"artifact"`
	Payload  Payload  `json:"payload"`
}

type Issuer struct {
	db              *gorm.DB
	repo            Repository
	keys            KeyStore
	store           ObjectStore
	seq             sequence.Generator
	node            *snowflake.Node
	clock           Clock
	maxValidityDays int
	artifactPrefix  string
}

func (r IssueRequest) validate(maxValidityDays int) error {
	var details []errutil.Detail
	add := func(field, msg string) {
		details = append(details, errutil.Detail{Field: field, Message: msg})
	}

	customer := strings.TrimSpace(r.Customer)
	switch {
	case customer == "":
		add("customer", "is required")
	case !utf8.ValidString(customer) || utf8.RuneCountInString(customer) > maxCustomerLength:
		add("customer", fmt.Sprintf("must be at most %d characters", maxCustomerLength))
	}
	if r.Kid == "" {
		add("kid", "is required")
	}
	if !Edition(r.Edition).Valid() {
		add("edition", "must be one of Basic, Standard, Pro, Enterprise")
	}
	if r.ValidityDays < 1 || r.ValidityDays > maxValidityDays {
		add("validityDays", fmt.Sprintf("must be between 1 and %d", maxValidityDays))
	}
	if r.Seats < 1 {
		add("seats", "must be a positive integer")
	}
	if r.Notes != nil && (!utf8.ValidString(*r.Notes) || len(*r.Notes) > maxNotesLength) {
		add("notes", fmt.Sprintf("must be at most %d bytes", maxNotesLength))
	}

	if len(details) > 0 {
		return errutil.BadRequest("invalid license request", ErrInvalidRequest, errutil.WithDetails(details...))
	}
	return nil
}

// Issue validates, signs and persists one license. The record and the
// artifact object are written together or not at all.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	zapLog := logger(ctx).With(zap.String("kid", req.Kid))

	if err := req.validate(i.maxValidityDays); err != nil {
		return nil, err
	}

	fingerprintID, err := ValidateFingerprint(req.FingerprintID)
	if err != nil {
		return nil, err
	}

	if _, err := i.keys.LookupPublicKeyByKid(ctx, req.Kid); err != nil {
		return nil, keyError(err)
	}

	issuedAt := i.clock.Now().UTC().Truncate(time.Second)
	payload := Payload{
		Kid:         req.Kid,
		Customer:    strings.TrimSpace(req.Customer),
		Edition:     Edition(req.Edition),
		IssuedAt:    issuedAt,
		Expires:     ExpiresAfter(issuedAt, req.ValidityDays),
		Seats:       req.Seats,
		Fingerprint: Fingerprint{FingerprintID: fingerprintID},
	}
	if req.Notes != nil {
		payload.Notes = *req.Notes
	}

	canonical, err := Canonicalize(payload)
	if err != nil {
		return nil, err
	}

	signature, err := i.keys.SignWithKid(ctx, req.Kid, canonical)
	if err != nil {
		return nil, keyError(err)
	}

	artifact := Artifact{
		Payload:   base64.StdEncoding.EncodeToString(canonical),
		Signature: base64.StdEncoding.EncodeToString(signature),
	}

	code, err := i.seq.NextLicenseCode(ctx)
	if err != nil {
		zapLog.Error("failed to allocate license code", zap.Error(err))
		return nil, errutil.Internal("failed to issue license", err)
	}

	id := i.node.Generate().String()
	objectKey := ""
	if i.store != nil {
		objectKey = ObjectKey(i.artifactPrefix, payload.Customer, id)
	}
	rec := newRecord(id, code, objectKey, payload, req.ValidityDays, artifact, canonical)

	if err := i.persist(ctx, rec, artifact); err != nil {
		zapLog.Error("failed to persist license", zap.String("id", id), zap.Error(err))
		return nil, errutil.Internal("failed to issue license", err)
	}

	zapLog.Info("license issued",
		zap.String("id", id),
		zap.String("code", code),
		zap.String("edition", string(payload.Edition)),
		zap.Int("seats", payload.Seats),
		zap.Time("expires", payload.Expires),
	)
	return &Issued{Record: rec, Artifact: artifact, Payload: payload}, nil
}

func (i *Issuer) persist(ctx context.Context, rec *Record, artifact Artifact) error {
	uploaded := false
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := i.repo.WithTrx(tx).Save(ctx, rec); err != nil {
			return err
		}
		if rec.ObjectKey == "" {
			return nil
		}

		data, err := artifact.MarshalFile()
		if err != nil {
			return err
		}
		if err := i.store.Put(ctx, rec.ObjectKey, data); err != nil {
			return err
		}
		uploaded = true
		return nil
	})
	if err != nil && uploaded {
		// commit failed after the upload
		if rmErr := i.store.Remove(context.WithoutCancel(ctx), rec.ObjectKey); rmErr != nil {
			logger(ctx).Warn("failed to remove orphaned artifact", zap.String("object_key", rec.ObjectKey), zap.Error(rmErr))
		}
	}
	return err
}

// keyError keeps KeyNotFound as a request problem rather than a missing route.
func keyError(err error) error {
	if errors.Is(err, ErrKeyNotFound) {
		return errutil.UnprocessableEntity("signing key not found", err)
	}
	return err
}

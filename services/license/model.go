package license

import (
	"time"

	"gorm.io/datatypes"
)

// Record is one issuance. Only DownloadCount changes after insert.
type Record struct {
	ID            string         `gorm:"column:id;primaryKey" json:"id"`
	Code          string         `gorm:"column:code;size:32;index" json:"code"`
	Kid           string         `gorm:"column:kid;size:255;index;not null" json:"kid"`
	Customer      string         `gorm:"column:customer;size:255;not null" json:"customer"`
	Edition       string         `gorm:"column:edition;size:32;not null" json:"edition"`
	Seats         int            `gorm:"column:seats;not null" json:"seats"`
	FingerprintID string         `gorm:"column:fingerprint_id;size:16;index;not null" json:"fingerprintId"`
	Notes         *string        `gorm:"column:notes" json:"notes"`
	IssuedAt      time.Time      `gorm:"column:issued_at;not null" json:"issuedAt"`
	Expires       time.Time      `gorm:"column:expires;not null" json:"expires"`
	ValidityDays  int            `gorm:"column:validity_days;not null" json:"validityDays"`
	PayloadB64    string         `gorm:"column:payload_b64;type:text;not null" json:"payloadB64"`
	SignatureB64  string         `gorm:"column:signature_b64;not null" json:"signatureB64"`
	Payload       datatypes.JSON `gorm:"column:payload" json:"-"`
	ObjectKey     string         `gorm:"column:object_key" json:"objectKey,omitempty"`
	DownloadCount int64          `gorm:"column:download_count;not null;default:0" json:"downloadCount"`
	CreatedAt     time.Time      `gorm:"column:created_at;index" json:"createdAt"`
}

func (Record) TableName() string {
	return "desktop_licenses"
}

func (r *Record) Artifact() Artifact {
	return Artifact{Payload: r.PayloadB64, Signature: r.SignatureB64}
}

func newRecord(id, code, objectKey string, p Payload, validityDays int, artifact Artifact, canonical []byte) *Record {
	rec := &Record{
		ID:            id,
		Code:          code,
		Kid:           p.Kid,
		Customer:      p.Customer,
		Edition:       string(p.Edition),
		Seats:         p.Seats,
		FingerprintID: p.Fingerprint.FingerprintID,
		IssuedAt:      p.IssuedAt,
		Expires:       p.Expires,
		ValidityDays:  validityDays,
		PayloadB64:    artifact.Payload,
		SignatureB64:  artifact.Signature,
		Payload:       datatypes.JSON(canonical),
		ObjectKey:     objectKey,
		CreatedAt:     p.IssuedAt,
	}
	if p.Notes != "" {
		notes := p.Notes
		rec.Notes = &notes
	}
	return rec
}

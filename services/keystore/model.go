package keystore

import (
	"time"
)

// Key is an Ed25519 signing identity. PrivateKeyEnc holds the sealed 32-byte
// seed; it is nil for verification-only keys.
type Key struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Kid           string    `gorm:"column:kid;size:255;not null;uniqueIndex:idx_license_keys_kid"`
	PublicKeyB64  string    `gorm:"column:public_key_b64;not null"`
	PrivateKeyEnc *string   `gorm:"column:private_key_enc" json:"-"`
	Notes         *string   `gorm:"column:notes"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (Key) TableName() string {
	return "license_keys"
}

// KeyView is the only shape a Key leaves the package in.
type KeyView struct {
	ID            string    `json:"id"`
	Kid           string    `json:"kid"`
	PublicKeyB64  string    `json:"publicKey"`
	Notes         *string   `json:"notes"`
	HasPrivateKey bool      `json:"hasPrivateKey"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (k *Key) View() *KeyView {
	return &KeyView{
		ID:            k.ID,
		Kid:           k.Kid,
		PublicKeyB64:  k.PublicKeyB64,
		Notes:         k.Notes,
		HasPrivateKey: k.PrivateKeyEnc != nil,
		CreatedAt:     k.CreatedAt,
		UpdatedAt:     k.UpdatedAt,
	}
}

// ImportKey carries an existing key pair. PrivateKeyB64 is optional and may
// be a 32-byte seed or a 64-byte secret key, standard base64.
type ImportKey struct {
	Kid           string  `json:"kid" binding:"required,max=255"`
	PublicKeyB64  string  `json:"publicKey" binding:"required"`
	PrivateKeyB64 string  `json:"privateKey,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type ImportError struct {
	Index   int    `json:"index"`
	Kid     string `json:"kid"`
	Message string `json:"message"`
}

type ImportResult struct {
	Imported int           `json:"imported"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Total    int           `json:"total"`
	Errors   []ImportError `json:"errors,omitempty"`
}

package license

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

type Edition string

const (
	EditionBasic      Edition = "Basic"
	EditionStandard   Edition = "Standard"
	EditionPro        Edition = "Pro"
	EditionEnterprise Edition = "Enterprise"
)

func (e Edition) Valid() bool {
	switch e {
	case EditionBasic, EditionStandard, EditionPro, EditionEnterprise:
		return true
	}
	return false
}

const (
	maxCustomerLength = 255
	maxKidLength      = 255
	maxNotesLength    = 4096
)

type Fingerprint struct {
	FingerprintID string `json:"fingerprintId"`
}

// Payload is the signed content of a license. Timestamps are UTC with whole
// seconds; Canonicalize refuses anything finer.
type Payload struct {
	Kid         string      `json:"kid"`
	Customer    string      `json:"customer"`
	Edition     Edition     `json:"edition"`
	IssuedAt    time.Time   `json:"issuedAt"`
	Expires     time.Time   `json:"expires"`
	Seats       int         `json:"seats"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Notes       string      `json:"notes,omitempty"`
}

var canonicalFingerprint = regexp.MustCompile(`^[0-9a-f]{16}$`)

// Validate checks the payload shape. It does not look at the clock.
func (p Payload) Validate() error {
	switch {
	case p.Kid == "" || len(p.Kid) > maxKidLength || !utf8.ValidString(p.Kid):
		return fmt.Errorf("kid must be 1..%d bytes of UTF-8", maxKidLength)
	case strings.TrimSpace(p.Customer) == "" || !utf8.ValidString(p.Customer):
		return fmt.Errorf("customer is required")
	case utf8.RuneCountInString(p.Customer) > maxCustomerLength:
		return fmt.Errorf("customer must be at most %d characters", maxCustomerLength)
	case !p.Edition.Valid():
		return fmt.Errorf("edition %q is not one of Basic, Standard, Pro, Enterprise", p.Edition)
	case p.Seats < 1:
		return fmt.Errorf("seats must be a positive integer")
	case !canonicalFingerprint.MatchString(p.Fingerprint.FingerprintID):
		return fmt.Errorf("fingerprintId must be 16 lowercase hex characters")
	case !utf8.ValidString(p.Notes) || len(p.Notes) > maxNotesLength:
		return fmt.Errorf("notes must be at most %d bytes of UTF-8", maxNotesLength)
	}

	if err := checkTimestamp("issuedAt", p.IssuedAt); err != nil {
		return err
	}
	if err := checkTimestamp("expires", p.Expires); err != nil {
		return err
	}
	if !p.Expires.After(p.IssuedAt) {
		return fmt.Errorf("expires must be after issuedAt")
	}
	return nil
}

func checkTimestamp(field string, t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%s is required", field)
	}
	if t.Location() != time.UTC {
		return fmt.Errorf("%s must be in UTC", field)
	}
	if t.Nanosecond() != 0 {
		return fmt.Errorf("%s must have whole-second precision", field)
	}
	if y := t.Year(); y < 1 || y > 9999 {
		return fmt.Errorf("%s is out of range", field)
	}
	return nil
}

// ExpiresAfter returns issuedAt plus days calendar days in UTC.
func ExpiresAfter(issuedAt time.Time, days int) time.Time {
	return issuedAt.UTC().AddDate(0, 0, days)
}

package license

import (
	"errors"

	"license-controlplane/services/keystore"
)

// ErrorKind names a failure class. Verification reports kinds as values in
// VerifyResult; administrative calls return errors that KindOf maps back.
type ErrorKind string

const (
	KindNone                     ErrorKind = ""
	KindInvalidRequest           ErrorKind = "InvalidRequest"
	KindInvalidFingerprintFormat ErrorKind = "InvalidFingerprintFormat"
	KindDuplicateKid             ErrorKind = "DuplicateKid"
	KindKeyNotFound              ErrorKind = "KeyNotFound"
	KindMalformedPayload         ErrorKind = "MalformedPayload"
	KindSignatureInvalid         ErrorKind = "SignatureInvalid"
	KindExpired                  ErrorKind = "Expired"
	KindNotFound                 ErrorKind = "NotFound"
)

var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrInvalidFingerprintFormat = errors.New("invalid fingerprint format")
	ErrMalformedPayload         = errors.New("malformed payload")
	ErrSignatureInvalid         = errors.New("signature invalid")
	ErrExpired                  = errors.New("license expired")
	ErrNotFound                 = errors.New("license not found")

	ErrDuplicateKid = keystore.ErrDuplicateKid
	ErrKeyNotFound  = keystore.ErrKeyNotFound
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidFingerprintFormat, KindInvalidFingerprintFormat},
	{ErrInvalidRequest, KindInvalidRequest},
	{keystore.ErrInvalidRequest, KindInvalidRequest},
	{keystore.ErrInvalidKid, KindInvalidRequest},
	{keystore.ErrInvalidKey, KindInvalidRequest},
	{ErrDuplicateKid, KindDuplicateKid},
	{ErrKeyNotFound, KindKeyNotFound},
	{ErrMalformedPayload, KindMalformedPayload},
	{ErrSignatureInvalid, KindSignatureInvalid},
	{ErrExpired, KindExpired},
	{ErrNotFound, KindNotFound},
	{keystore.ErrNotFound, KindNotFound},
}

// KindOf returns the kind carried by err, KindNone when it has none.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindNone
}

package license

import (
	"regexp"
	"strings"

	"license-controlplane/pkg/errutil"
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-fA-F]{16}$`)

// ValidateFingerprint accepts exactly 16 hex characters in any case and
// returns them lowercased.
func ValidateFingerprint(raw string) (string, error) {
	if !fingerprintPattern.MatchString(raw) {
		return "", errutil.BadRequest(
			"fingerprintId must be exactly 16 hexadecimal characters",
			ErrInvalidFingerprintFormat,
			errutil.WithDetails(errutil.Detail{Field: "fingerprintId", Message: "must match ^[0-9a-f]{16}$"}),
		)
	}
	return strings.ToLower(raw), nil
}

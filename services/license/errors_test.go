package license

import (
	"errors"
	"fmt"
	"testing"

	"license-controlplane/pkg/errutil"
	"license-controlplane/services/keystore"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{errors.New("boom"), KindNone},
		{errutil.BadRequest("bad", ErrInvalidRequest), KindInvalidRequest},
		{errutil.BadRequest("bad", keystore.ErrInvalidKid), KindInvalidRequest},
		{errutil.BadRequest("invalid request body", keystore.ErrInvalidRequest), KindInvalidRequest},
		{errutil.Conflict("dup", keystore.ErrDuplicateKid), KindDuplicateKid},
		{fmt.Errorf("wrapped: %w", errutil.NotFound("missing", keystore.ErrKeyNotFound)), KindKeyNotFound},
		{errutil.NotFound("missing", keystore.ErrNotFound), KindNotFound},
		{errutil.NotFound("missing", ErrNotFound), KindNotFound},
		{malformed("x"), KindMalformedPayload},
		{ErrSignatureInvalid, KindSignatureInvalid},
		{ErrExpired, KindExpired},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, KindOf(tc.err), fmt.Sprint(tc.err))
	}
}

package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildLicenseSequenceKey(t *testing.T) {
	require.Equal(t, "seq:LIC:261019", BuildLicenseSequenceKey("261019"))
	require.Equal(t, "seq:KEY:261019", BuildDailySequenceKey("KEY", "261019"))
}

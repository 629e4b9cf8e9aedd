package secretmanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvideVaultWithoutAddr(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")

	client, err := ProvideVault()
	require.NoError(t, err)
	require.Nil(t, client)
}

func TestProvideVaultWithAddr(t *testing.T) {
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")

	client, err := ProvideVault()
	require.NoError(t, err)
	require.NotNil(t, client)
}

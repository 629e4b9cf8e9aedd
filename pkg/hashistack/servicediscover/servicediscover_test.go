package servicediscover

import (
	"testing"

	"license-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewRegistryDisabled(t *testing.T) {
	registry, err := NewRegistry(&config.Config{})
	require.NoError(t, err)
	require.Nil(t, registry)
}

func TestNewRegistryRequiresPort(t *testing.T) {
	cfg := &config.Config{}
	cfg.Consul.Addr = "127.0.0.1:8500"
	cfg.Server.Addr = ":8080"

	_, err := NewRegistry(cfg)
	require.ErrorContains(t, err, "HTTP_SERVER.ADDR")
}

func TestRegistration(t *testing.T) {
	cfg := &config.Config{AppName: "licensed", AppEnv: "staging", AppVersion: "1.4.0", NodeID: 3}
	cfg.TLS.Enable = true

	reg := Registration(cfg, "10.0.0.5", 8080)
	require.Equal(t, "licensed-3", reg.ID)
	require.Equal(t, "licensed", reg.Name)
	require.Equal(t, 8080, reg.Port)
	require.Equal(t, "https://10.0.0.5:8080/readyz", reg.Check.HTTP)
	require.True(t, reg.Check.TLSSkipVerify)
}

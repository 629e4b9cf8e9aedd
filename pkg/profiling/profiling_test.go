package profiling

import (
	"testing"

	"license-controlplane/pkg/config"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func TestNewConfig(t *testing.T) {
	cfg := &config.Config{AppName: "licensed", AppEnv: "test"}
	cfg.Pyroscope.Addr = "http://pyroscope:4040"

	pc := NewConfig(cfg)
	require.Equal(t, "licensed", pc.ApplicationName)
	require.Equal(t, "http://pyroscope:4040", pc.ServerAddress)
	require.Equal(t, "test", pc.Tags["env"])
	require.Contains(t, pc.ProfileTypes, pyroscope.ProfileCPU)
}

func TestStartProfilingDisabled(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	require.NoError(t, StartProfiling(lc, &config.Config{}))
	lc.RequireStart().RequireStop()
}

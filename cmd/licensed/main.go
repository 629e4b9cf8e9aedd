package main

import (
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/db"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/hashistack/secretmanager"
	"license-controlplane/pkg/hashistack/servicediscover"
	"license-controlplane/pkg/health"
	"license-controlplane/pkg/httpapi"
	"license-controlplane/pkg/logger"
	"license-controlplane/pkg/minio"
	"license-controlplane/pkg/otelcol"
	"license-controlplane/pkg/profiling"
	"license-controlplane/pkg/redis"
	"license-controlplane/pkg/sequence"
	"license-controlplane/pkg/server"
	"license-controlplane/services/keystore"
	"license-controlplane/services/license"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		configModule(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		servicediscover.Module,
		db.Module,
		redis.Module,
		minio.Client,
		gen.Module,
		sequence.Module,
		health.Module,
		httpapi.Module,
		keystore.ServerModule,
		license.ServerModule,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

// configModule reads from the remote provider (consul KV by default) when
// REMOTE_CONFIG_PROVIDER is set, otherwise config.yaml and the environment.
func configModule() fx.Option {
	if _, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		return config.RemoteModule
	}
	return config.Module
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger.Named("fx")}
	}
	return fxevent.NopLogger
})

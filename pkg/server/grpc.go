package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/errutil"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/validator"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

var ProvideGRPCServer = fx.Module("grpc.server",
	fx.Provide(
		NewListener,
		WithOption,
		NewGRPCServer,
		NewHealthServer,
	),
	fx.Invoke(
		StartGRPCServer,
	),
)

func NewListener(cfg *config.Config) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf(":%s", cfg.Grpc.Addr))
}

type OptionParams struct {
	fx.In
	Config *config.Config
	Tracer trace.TracerProvider
	Meter  metric.MeterProvider
}

func WithOption(p OptionParams) ([]grpc.ServerOption, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			validator.UnaryServerInterceptor(validator.WithFailFast()),
			errutil.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			validator.StreamServerInterceptor(validator.WithFailFast()),
		),
		WithStatsHandler(p.Tracer, p.Meter),
	}

	if p.Config.TLS.Enable {
		cert, err := LoadCertificate(p.Config.TLS.CertPath, p.Config.TLS.KeyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTLS(cert))
	}

	return opts, nil
}

func WithStatsHandler(tp trace.TracerProvider, mp metric.MeterProvider) grpc.ServerOption {
	return grpc.StatsHandler(
		otelgrpc.NewServerHandler(
			otelgrpc.WithTracerProvider(tp),
			otelgrpc.WithMeterProvider(mp),
		),
	)
}

func LoadCertificate(certPath, keyPath string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func WithTLS(tls *tls.Certificate) grpc.ServerOption {
	return grpc.Creds(
		credentials.NewServerTLSFromCert(tls),
	)
}

func NewGRPCServer(opts []grpc.ServerOption) *grpc.Server {
	return grpc.NewServer(opts...)
}

// NewHealthServer registers grpc.health.v1 for orchestrator probes. The overall
// status flips to SERVING once the server starts.
func NewHealthServer(srv *grpc.Server) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return hs
}

func StartGRPCServer(lc fx.Lifecycle, lis net.Listener, srv *grpc.Server, hs *health.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			reflection.Register(srv)
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			go func() {
				zap.L().Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
				if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					zap.L().Error("gRPC server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("Stopping gRPC server")
			hs.Shutdown()
			srv.GracefulStop()
			return nil
		},
	})
}

package servicediscover

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"license-controlplane/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module registers the HTTP listener in consul for the lifetime of the app.
// It does nothing when CONSUL.ADDR is unset.
var Module = fx.Module("servicediscover",
	fx.Provide(NewRegistry),
	fx.Invoke(registerConsul),
)

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

type ConsulRegistry struct {
	client    *api.Client
	serviceID string
	service   *api.AgentServiceRegistration
}

func NewConfig(cfg *config.Config) *api.Config {
	c := api.DefaultConfig()
	c.Address = cfg.Consul.Addr
	return c
}

// NewRegistry returns nil when consul is not configured.
func NewRegistry(cfg *config.Config) (ServiceRegistry, error) {
	if cfg.Consul.Addr == "" {
		return nil, nil
	}

	client, err := api.NewClient(NewConfig(cfg))
	if err != nil {
		zap.L().Error("failed to create consul client", zap.String("addr", cfg.Consul.Addr), zap.Error(err))
		return nil, err
	}

	port, err := strconv.Atoi(cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("HTTP_SERVER.ADDR must be a port for consul registration: %w", err)
	}

	host := cfg.Consul.ServiceHost
	if host == "" {
		if host, err = os.Hostname(); err != nil {
			return nil, err
		}
	}

	return NewConsulRegistry(client, Registration(cfg, host, port)), nil
}

// Registration describes this replica with a readiness check on /readyz.
func Registration(cfg *config.Config, host string, port int) *api.AgentServiceRegistration {
	scheme := "http"
	if cfg.TLS.Enable {
		scheme = "https"
	}

	return &api.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%d", cfg.AppName, cfg.NodeID),
		Name:    cfg.AppName,
		Address: host,
		Port:    port,
		Tags:    []string{cfg.AppEnv, cfg.AppVersion},
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("%s://%s:%d/readyz", scheme, host, port),
			TLSSkipVerify:                  cfg.TLS.Enable,
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}

func NewConsulRegistry(client *api.Client, service *api.AgentServiceRegistration) *ConsulRegistry {
	return &ConsulRegistry{
		client:    client,
		serviceID: service.ID,
		service:   service,
	}
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegisterOpts(r.service, api.ServiceRegisterOpts{}.WithContext(ctx))
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregisterOpts(r.serviceID, (&api.QueryOptions{}).WithContext(ctx))
}

func registerConsul(lc fx.Lifecycle, registry ServiceRegistry) {
	if registry == nil {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Register(ctx); err != nil {
				// the API still serves without discovery
				zap.L().Warn("consul registration failed", zap.Error(err))
				return nil
			}
			zap.L().Info("registered in consul")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return registry.Deregister(ctx)
		},
	})
}

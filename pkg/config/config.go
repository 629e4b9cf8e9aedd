package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	backend     = "consul"
	backendAddr = "127.0.0.1:8500"
	backendPath = "development" // e.g., app/<env>/<service_name>
	configType  = "yaml"
)

const (
	// MaxClockSkew bounds LICENSE_CLOCK_SKEW; expiry tolerance beyond this is a misconfiguration.
	MaxClockSkew = 5 * time.Minute

	DefaultMaxValidityDays = 3650
	DefaultEntropyTimeout  = 5 * time.Second
	DefaultArtifactPrefix  = "desktop-licenses"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"` // http or grpc
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Consul struct {
		Addr string `mapstructure:"ADDR"`
		// ServiceHost is the address other services reach this replica on.
		ServiceHost string `mapstructure:"SERVICE_HOST"`
	} `mapstructure:"CONSUL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	// SecretAES seals private key seeds at rest. At least 32 bytes.
	SecretAES string `mapstructure:"SECRET_AES"`
	License   struct {
		ClockSkew       time.Duration `mapstructure:"CLOCK_SKEW"`
		MaxValidityDays int           `mapstructure:"MAX_VALIDITY_DAYS"`
		EntropyTimeout  time.Duration `mapstructure:"ENTROPY_TIMEOUT"`
		ArtifactPrefix  string        `mapstructure:"ARTIFACT_PREFIX"`
	} `mapstructure:"LICENSE"`
}

var envOnlyKeys = []string{
	"APP_VERSION", "SECRET_AES",
	"TLS.ENABLE", "TLS.CERT_PATH", "TLS.KEY_PATH",
	"OTEL.ADDR", "OTEL.PROTOCOL", "PYROSCOPE.ADDR", "CONSUL.ADDR", "CONSUL.SERVICE_HOST",
	"DATABASE.HOST", "DATABASE.PORT", "DATABASE.DBNAME", "DATABASE.USER",
	"DATABASE.PASSWORD", "DATABASE.SSLMODE", "DATABASE.TIMEZONE",
	"DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", "DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS",
	"DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", "DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME",
	"REDIS.PASSWORD", "REDIS.DB", "REDIS.POOL_SIZE", "REDIS.POOL_TIMEOUT",
	"MINIO.ACCESS_KEY", "MINIO.SECRET_KEY", "MINIO.SECURE",
	"LICENSE.CLOCK_SKEW",
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType(configType)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "licensed")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("MINIO.ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO.BUCKET_NAME", "licenses")
	v.SetDefault("LICENSE.MAX_VALIDITY_DAYS", DefaultMaxValidityDays)
	v.SetDefault("LICENSE.ENTROPY_TIMEOUT", DefaultEntropyTimeout)
	v.SetDefault("LICENSE.ARTIFACT_PREFIX", DefaultArtifactPrefix)

	// Unmarshal only sees keys viper already knows about; register the
	// env-only ones so AutomaticEnv can fill them.
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// LoadConfig reads config.yaml from the working directory, overlays the
// environment and, when a vault client is provided, the KV secrets for APP_ENV.
func LoadConfig(p Params) (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		zap.L().Warn("config.yaml not found, using environment only")
	}

	return finish(v, p.Vault)
}

func LoadRemote(p Params) (*Config, error) {
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	v := newViper()
	if err := v.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		return nil, fmt.Errorf("add remote provider: %w", err)
	}

	if err := v.ReadRemoteConfig(); err != nil {
		return nil, fmt.Errorf("read remote config: %w", err)
	}

	return finish(v, p.Vault)
}

func finish(v *viper.Viper, client *vault.Client) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if client != nil {
		if err := applyVaultSecrets(context.Background(), client, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyVaultSecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return fmt.Errorf("vault kv read: %w", err)
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Minio.SecretKey = get("minio_secret_key", cfg.Minio.SecretKey)
	cfg.SecretAES = get("secret_aes", cfg.SecretAES)
	return nil
}

// Validate checks the license settings that would otherwise fail at request time.
func (c *Config) Validate() error {
	if len(c.SecretAES) < 32 {
		return fmt.Errorf("invalid SECRET_AES: must be at least 32 bytes")
	}
	if c.License.ClockSkew < 0 || c.License.ClockSkew > MaxClockSkew {
		return fmt.Errorf("invalid LICENSE.CLOCK_SKEW: must be in range 0..%s", MaxClockSkew)
	}
	if c.License.MaxValidityDays < 1 {
		return fmt.Errorf("invalid LICENSE.MAX_VALIDITY_DAYS: must be >= 1")
	}
	if c.License.EntropyTimeout <= 0 {
		return fmt.Errorf("invalid LICENSE.ENTROPY_TIMEOUT: must be > 0")
	}
	if c.TLS.Enable && (c.TLS.CertPath == "" || c.TLS.KeyPath == "") {
		return fmt.Errorf("tls enabled but TLS.CERT_PATH or TLS.KEY_PATH not provided")
	}
	return nil
}

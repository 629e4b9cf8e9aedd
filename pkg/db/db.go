package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"license-controlplane/pkg/config"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(
		RegisterConnectionPool,
		Otel,
		Metric,
	),
)

// Dialect picks the gorm dialector from DATABASE.TYPE.
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	d := cfg.Database
	switch strings.ToLower(d.Type) {
	case "", "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			d.Host, d.Port, d.User, d.Password, d.DBNAME, orDefault(d.SSLMode, "disable"), orDefault(d.Timezone, "UTC"))
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBNAME)
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(orDefault(d.DBNAME, "licensed.db")), nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE.TYPE %q", d.Type)
	}
}

// New opens the database. TranslateError is on so unique index violations
// surface as gorm.ErrDuplicatedKey on every driver.
func New(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	logLevel := logger.Info
	showSQL := true
	if cfg.AppEnv == "production" {
		logLevel = logger.Warn
		showSQL = false
	}

	gormLogger := NewZapGormLogger(zap.L(), logLevel, showSQL)

	for i := 0; i < 5; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger:         gormLogger,
			TranslateError: true,
			NowFunc:        func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			break
		}
		zap.L().Warn("[DB] Database not ready, retrying in 3 seconds... ", zap.Int("retry", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}

	if err != nil {
		zap.L().Error("[DB] Failed to connect to database", zap.Error(err))
		return nil, err
	}

	zap.L().Info("[DB] Database connection successfully configured.", zap.String("dialect", dialector.Name()))

	return db, nil
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		zap.L().Error("[DB] Failed to get sql.DB from gorm", zap.Error(err))
		return err
	}

	cp := p.Config.Database.ConnectionPool
	if cp.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cp.MaxIdleConn)
	}
	if cp.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cp.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cp.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cp.ConnMaxIdleTime)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] Closing connection pool...")
			return sqlDB.Close()
		},
	})
	return nil
}

func Otel(db *gorm.DB) error {
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		zap.L().Error("Failed to register db telemetry", zap.Error(err))
		return err
	}

	return nil
}

// Metric exports connection pool stats on the default prometheus registry,
// which the HTTP server serves at /metrics.
func Metric(db *gorm.DB, cfg *config.Config) error {
	pcfg := prometheus.Config{
		DBName:          orDefault(cfg.Database.DBNAME, "unknown"),
		RefreshInterval: 15,
	}
	if db.Dialector.Name() == "postgres" {
		pcfg.MetricsCollector = []prometheus.MetricsCollector{
			&prometheus.Postgres{VariableNames: []string{"Threads_running"}},
		}
	}

	if err := db.Use(prometheus.New(pcfg)); err != nil {
		zap.L().Error("Failed to register db metrics", zap.Error(err))
		return err
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

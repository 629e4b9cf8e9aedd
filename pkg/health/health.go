package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
	Check(ctx context.Context) *Health
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
	minio *minio.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
	Minio *minio.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
		minio: p.Minio,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	this := h.Check(c.Request.Context())
	code := http.StatusOK
	if this.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, this)
}

// Check pings every wired dependency. Redis is reported but does not fail
// readiness since license codes have a fallback.
func (h *health) Check(ctx context.Context) *Health {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	this := &Health{
		Status:  StatusHealthy,
		Message: "OK",
	}

	if h.db != nil {
		dep := probe(h.db.Dialector.Name(), func() error {
			sqlDB, err := h.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
		this.add(dep, true)
	}

	if h.redis != nil {
		this.add(probe("redis", func() error {
			return h.redis.Ping(ctx).Err()
		}), false)
	}

	if h.minio != nil {
		this.add(probe("minio", func() error {
			_, err := h.minio.ListBuckets(ctx)
			return err
		}), true)
	}

	return this
}

func (h *Health) add(dep Dependency, critical bool) {
	h.Deps = append(h.Deps, dep)
	if critical && dep.Status != StatusHealthy {
		h.Status = StatusUnhealthy
		h.Message = dep.Name + " unavailable"
	}
}

func probe(name string, ping func() error) Dependency {
	dep := Dependency{Name: name, Status: StatusHealthy, Message: "OK"}
	if err := ping(); err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

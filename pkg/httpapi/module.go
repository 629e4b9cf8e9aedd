package httpapi

import (
	"net/http"

	"license-controlplane/pkg/config"
	"license-controlplane/pkg/health"
	"license-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// APIPrefix roots the operator API.
const APIPrefix = "/v1/desktop-licenses"

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine),
	fx.Invoke(registerHealthEndpoint),
)

// NewEngine builds the gin engine shared by every service router.
func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Trace(cfg.AppName), middleware.Error())
	return r
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "route not found"}})
	})
}

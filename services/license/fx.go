package license

import (
	"license-controlplane/pkg/httpapi"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("license.module",
	fx.Provide(
		NewMinioStore,
		NewService,
	),
	fx.Invoke(migrate),
)

var ServerModule = fx.Module("license.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Record{}); err != nil {
		zap.L().Error("failed to migrate desktop_licenses", zap.Error(err))
		return err
	}
	return nil
}

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r.Group(httpapi.APIPrefix))
}

package keystore

import (
	"license-controlplane/pkg/httpapi"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("keystore.module",
	fx.Provide(NewService),
	fx.Invoke(migrate),
)

var ServerModule = fx.Module("keystore.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Key{}); err != nil {
		zap.L().Error("failed to migrate license_keys", zap.Error(err))
		return err
	}
	return nil
}

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r.Group(httpapi.APIPrefix))
}

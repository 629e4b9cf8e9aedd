package gen

import (
	"license-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake", fx.Provide(NewSnowflakeNode))

// NewSnowflakeNode provides the id generator for keys and licenses. NODE_ID
// must be unique per running replica.
func NewSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		zap.L().Error("failed to init snowflake node", zap.Int64("node_id", cfg.NodeID), zap.Error(err))
		return nil, err
	}
	return node, nil
}

package gen

import (
	"influencehub/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(ProvideNode))

// ProvideNode builds the snowflake node from SNOWFLAKE.NODE_ID (0..1023).
func ProvideNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Snowflake.NodeID)
}

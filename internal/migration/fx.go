package migration

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/docuflow/billing/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, genID *snowflake.Node) error {
		if err := RunMigrations(conn); err != nil {
			return err
		}
		return seed.EnsureDefaultPlans(conn, genID)
	}),
)

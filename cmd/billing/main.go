package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/docuflow/billing/internal/config"
	"github.com/docuflow/billing/internal/migration"
	"github.com/docuflow/billing/internal/observability"
	"github.com/docuflow/billing/internal/server"
	"github.com/docuflow/billing/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

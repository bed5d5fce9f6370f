package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/assignment"
	"github.com/propbase/propbase/internal/audit"
	"github.com/propbase/propbase/internal/authorization"
	"github.com/propbase/propbase/internal/config"
	"github.com/propbase/propbase/internal/identity"
	"github.com/propbase/propbase/internal/logger"
	"github.com/propbase/propbase/internal/migration"
	"github.com/propbase/propbase/internal/notify"
	"github.com/propbase/propbase/internal/property"
	"github.com/propbase/propbase/internal/requestlog"
	"github.com/propbase/propbase/internal/token"
	"github.com/propbase/propbase/pkg/db"
	"github.com/propbase/propbase/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		telemetry.Module,
		migration.Module,

		// Domains
		audit.Module,
		identity.Module,
		token.Module,
		authorization.Module,
		notify.Module,
		assignment.Module,
		property.Module,
		requestlog.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

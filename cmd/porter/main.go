package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/clock"
	"github.com/porterhq/porter/internal/config"
	"github.com/porterhq/porter/internal/consent"
	"github.com/porterhq/porter/internal/integration"
	"github.com/porterhq/porter/internal/migration"
	"github.com/porterhq/porter/internal/observability"
	"github.com/porterhq/porter/internal/provider"
	"github.com/porterhq/porter/internal/refreshlock"
	"github.com/porterhq/porter/internal/scheduler"
	"github.com/porterhq/porter/internal/security"
	"github.com/porterhq/porter/internal/server"
	"github.com/porterhq/porter/internal/token"
	"github.com/porterhq/porter/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// OAuth lifecycle domains
		provider.Module,
		refreshlock.Module,
		token.Module,
		consent.Module,
		security.Module,
		integration.Module,

		// Surfaces
		server.Module,
		scheduler.Module,
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

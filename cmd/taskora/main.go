package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taskora/internal/clock"
	"github.com/smallbiznis/taskora/internal/config"
	"github.com/smallbiznis/taskora/internal/migration"
	"github.com/smallbiznis/taskora/internal/observability/logger"
	"github.com/smallbiznis/taskora/internal/revocation"
	"github.com/smallbiznis/taskora/internal/server"
	"github.com/smallbiznis/taskora/internal/token"
	"github.com/smallbiznis/taskora/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(NewSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,

		token.Module,
		revocation.Module,
		server.Module,
	)
	app.Run()
}

func NewSnowflakeNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/creditflow/creditflow/internal/clock"
	"github.com/creditflow/creditflow/internal/config"
	"github.com/creditflow/creditflow/internal/logger"
	"github.com/creditflow/creditflow/internal/metering"
	"github.com/creditflow/creditflow/internal/metrics"
	"github.com/creditflow/creditflow/internal/migration"
	"github.com/creditflow/creditflow/internal/notify"
	"github.com/creditflow/creditflow/internal/redisconn"
	"github.com/creditflow/creditflow/internal/registry"
	"github.com/creditflow/creditflow/internal/server"
	"github.com/creditflow/creditflow/internal/ws"
	"github.com/creditflow/creditflow/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		redisconn.Module,
		clock.Module,
		migration.Module,

		registry.Module,
		notify.Module,
		metering.Module,
		ws.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

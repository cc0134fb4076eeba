package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/fabriko/fabriko/internal/migration"
	"github.com/fabriko/fabriko/internal/scheduler"
	"github.com/fabriko/fabriko/internal/server"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		server.Module,
		migration.Module,
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

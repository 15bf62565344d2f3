package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/notazul/notazul/internal/business"
	"github.com/notazul/notazul/internal/clock"
	"github.com/notazul/notazul/internal/config"
	"github.com/notazul/notazul/internal/fiscalrule"
	"github.com/notazul/notazul/internal/invoice"
	"github.com/notazul/notazul/internal/migration"
	"github.com/notazul/notazul/internal/nfe"
	"github.com/notazul/notazul/internal/observability"
	"github.com/notazul/notazul/internal/order"
	"github.com/notazul/notazul/internal/server"
	"github.com/notazul/notazul/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		business.Module,
		fiscalrule.Module,
		order.Module,
		invoice.Module,
		nfe.Module,

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

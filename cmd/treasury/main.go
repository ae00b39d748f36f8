package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/repartia/treasury/internal/audit"
	"github.com/repartia/treasury/internal/clock"
	"github.com/repartia/treasury/internal/config"
	"github.com/repartia/treasury/internal/directory"
	"github.com/repartia/treasury/internal/expense"
	"github.com/repartia/treasury/internal/history"
	"github.com/repartia/treasury/internal/invoice"
	"github.com/repartia/treasury/internal/logger"
	"github.com/repartia/treasury/internal/migration"
	obsmetrics "github.com/repartia/treasury/internal/observability/metrics"
	"github.com/repartia/treasury/internal/payment"
	"github.com/repartia/treasury/internal/rating"
	"github.com/repartia/treasury/internal/server"
	"github.com/repartia/treasury/internal/taxvault"
	"github.com/repartia/treasury/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		obsmetrics.Module,
		migration.Module,

		// Functional domains
		audit.Module,
		directory.Module,
		rating.Module,
		history.Module,
		taxvault.Module,
		invoice.Module,
		payment.Module,
		expense.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}

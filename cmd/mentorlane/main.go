package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/mentorlane/mentorlane/internal/booking"
	"github.com/mentorlane/mentorlane/internal/clock"
	"github.com/mentorlane/mentorlane/internal/config"
	"github.com/mentorlane/mentorlane/internal/identity"
	"github.com/mentorlane/mentorlane/internal/logger"
	"github.com/mentorlane/mentorlane/internal/migration"
	"github.com/mentorlane/mentorlane/internal/observability"
	"github.com/mentorlane/mentorlane/internal/offering"
	"github.com/mentorlane/mentorlane/internal/payment"
	"github.com/mentorlane/mentorlane/internal/ratelimit"
	"github.com/mentorlane/mentorlane/internal/scheduler"
	"github.com/mentorlane/mentorlane/internal/server"
	"github.com/mentorlane/mentorlane/internal/slot"
	"github.com/mentorlane/mentorlane/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		identity.Module,

		// Functional domains
		offering.Module,
		slot.Module,
		booking.Module,
		payment.Module,
		ratelimit.Module,
		scheduler.Module,

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

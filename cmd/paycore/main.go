package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	"github.com/buildacademy/paycore/internal/config"
	"github.com/buildacademy/paycore/internal/enrollment"
	"github.com/buildacademy/paycore/internal/migration"
	obsmetrics "github.com/buildacademy/paycore/internal/observability/metrics"
	"github.com/buildacademy/paycore/internal/payment"
	"github.com/buildacademy/paycore/internal/paypal"
	"github.com/buildacademy/paycore/internal/plan"
	"github.com/buildacademy/paycore/internal/ratelimit"
	"github.com/buildacademy/paycore/internal/server"
	"github.com/buildacademy/paycore/internal/subscription"
	"github.com/buildacademy/paycore/internal/webhook"
	"github.com/buildacademy/paycore/pkg/db"
	"github.com/buildacademy/paycore/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		obsmetrics.Module,
		ratelimit.Module,

		// Functional domains
		paypal.Module,
		payment.Module,
		enrollment.Module,
		subscription.Module,
		plan.Module,
		webhook.Module,

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

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/teamride-labs/teamride/internal/checkout"
	"github.com/teamride-labs/teamride/internal/clock"
	"github.com/teamride-labs/teamride/internal/config"
	"github.com/teamride-labs/teamride/internal/notification"
	"github.com/teamride-labs/teamride/internal/observability"
	"github.com/teamride-labs/teamride/internal/organization"
	"github.com/teamride-labs/teamride/internal/payment"
	"github.com/teamride-labs/teamride/internal/plan"
	"github.com/teamride-labs/teamride/internal/quota"
	"github.com/teamride-labs/teamride/internal/redis"
	"github.com/teamride-labs/teamride/internal/scheduler"
	"github.com/teamride-labs/teamride/internal/server"
	"github.com/teamride-labs/teamride/internal/subscription"
	"github.com/teamride-labs/teamride/pkg/db"
	"go.uber.org/fx"
)

// Monolith entrypoint: API server and sweep scheduler in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redis.Module,

		plan.Module,
		subscription.Module,
		quota.Module,
		payment.Module,
		notification.Module,
		organization.Module,
		checkout.Module,

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

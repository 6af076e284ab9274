package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"github.com/teamride-labs/teamride/internal/checkout"
	"github.com/teamride-labs/teamride/internal/clock"
	"github.com/teamride-labs/teamride/internal/config"
	"github.com/teamride-labs/teamride/internal/migration"
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

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "teamride",
		Short:   "TeamRide billing CLI",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newSchedulerCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the billing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the billing sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			runScheduler()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the API server and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			runMonolith()
			return nil
		},
	}
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(
		append(coreModules(),
			server.Module,
		)...,
	)
	app.Run()
}

func runScheduler() {
	app := fx.New(
		append(coreModules(),
			scheduler.Module,
		)...,
	)
	app.Run()
}

func runMonolith() {
	app := fx.New(
		append(coreModules(),
			server.Module,
			scheduler.Module,
		)...,
	)
	app.Run()
}

func coreModules() []fx.Option {
	return []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
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
	}
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

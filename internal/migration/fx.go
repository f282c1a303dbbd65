package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	"github.com/buildacademy/paycore/internal/config"
	plandomain "github.com/buildacademy/paycore/internal/plan/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, holder *config.PlanCatalogHolder, repo plandomain.Repository, genID *snowflake.Node, clk clock.Clock) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		return EnsurePlans(context.Background(), conn, repo, holder.Get(), genID, clk)
	}),
)

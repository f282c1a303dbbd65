package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	"github.com/buildacademy/paycore/internal/config"
	plandomain "github.com/buildacademy/paycore/internal/plan/domain"
	"gorm.io/gorm"
)

// EnsurePlans upserts the catalog plans so slug lookups during webhook
// reconciliation resolve on a fresh install. Existing rows keep their ids;
// the upsert conflicts on slug and only refreshes name and access months.
func EnsurePlans(ctx context.Context, db *gorm.DB, repo plandomain.Repository, catalog config.PlanCatalog, genID *snowflake.Node, clk clock.Clock) error {
	now := clk.Now()
	for _, entry := range catalog.Plans {
		plan := &plandomain.Plan{
			ID:                 genID.Generate(),
			Slug:               entry.Slug,
			Name:               entry.Name,
			CourseAccessMonths: entry.CourseAccessMonths,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := repo.Upsert(ctx, db, plan); err != nil {
			return err
		}
	}
	return nil
}

package migration

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	"github.com/buildacademy/paycore/internal/config"
	plandomain "github.com/buildacademy/paycore/internal/plan/domain"
	planrepo "github.com/buildacademy/paycore/internal/plan/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnsurePlans(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&plandomain.Plan{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := planrepo.Provide()

	require.NoError(t, EnsurePlans(context.Background(), conn, repo, config.DefaultPlanCatalog(), node, clk))

	plan, err := repo.FindBySlug(context.Background(), conn, "team")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "Team", plan.Name)
	firstID := plan.ID

	// Re-seeding keeps ids stable and refreshes the mutable fields.
	catalog := config.DefaultPlanCatalog()
	for i := range catalog.Plans {
		if catalog.Plans[i].Slug == "team" {
			catalog.Plans[i].CourseAccessMonths = 24
		}
	}
	require.NoError(t, EnsurePlans(context.Background(), conn, repo, catalog, node, clk))

	plan, err = repo.FindBySlug(context.Background(), conn, "team")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, firstID, plan.ID)
	assert.Equal(t, 24, plan.CourseAccessMonths)
}

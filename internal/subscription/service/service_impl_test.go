package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	subscriptiondomain "github.com/buildacademy/paycore/internal/subscription/domain"
	"github.com/buildacademy/paycore/internal/subscription/repository"
	webhookdomain "github.com/buildacademy/paycore/internal/webhook/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&subscriptiondomain.OrganizationSubscription{}))
	require.NoError(t, conn.Exec(
		`CREATE TABLE organizations (
			id TEXT PRIMARY KEY,
			current_plan_id TEXT,
			updated_at DATETIME
		)`,
	).Error)
	require.NoError(t, conn.Exec(`INSERT INTO organizations (id) VALUES ('org1')`).Error)
	return conn
}

func newService(t *testing.T, conn *gorm.DB, repo subscriptiondomain.Repository, clk clock.Clock) subscriptiondomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repo,
	})
}

func TestUpgradeMonthlyExpiry(t *testing.T) {
	conn := setupDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	svc := newService(t, conn, repository.Provide(), clk)

	require.NoError(t, svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		OrganizationID: "org1",
		PlanID:         "42",
		BillingPeriod:  webhookdomain.BillingMonthly,
	}))

	subs, err := repository.Provide().FindByOrganization(context.Background(), conn, "org1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].ExpiresAt.Equal(clk.Now().AddDate(0, 1, 0)))

	var currentPlanID string
	require.NoError(t, conn.Raw(`SELECT current_plan_id FROM organizations WHERE id = 'org1'`).Scan(&currentPlanID).Error)
	assert.Equal(t, "42", currentPlanID)
}

func TestUpgradeRetiresPreviousActive(t *testing.T) {
	conn := setupDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	svc := newService(t, conn, repository.Provide(), clk)

	require.NoError(t, svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		OrganizationID: "org1",
		PlanID:         "42",
		BillingPeriod:  webhookdomain.BillingMonthly,
	}))

	clk.Advance(24 * time.Hour)

	require.NoError(t, svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		OrganizationID: "org1",
		PlanID:         "43",
		BillingPeriod:  webhookdomain.BillingAnnual,
	}))

	subs, err := repository.Provide().FindByOrganization(context.Background(), conn, "org1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusExpired, subs[0].Status)
	require.NotNil(t, subs[0].CancelledAt)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, subs[1].Status)
	assert.Equal(t, "43", subs[1].PlanID)
}

// expireFailRepo wraps the real repository but fails the retire step.
type expireFailRepo struct {
	subscriptiondomain.Repository
}

func (r *expireFailRepo) ExpireActive(ctx context.Context, db *gorm.DB, organizationID string, cancelledAt time.Time) (int64, error) {
	return 0, errors.New("expire failed")
}

func TestUpgradeContinuesWhenExpireFails(t *testing.T) {
	conn := setupDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	svc := newService(t, conn, &expireFailRepo{Repository: repository.Provide()}, clk)

	require.NoError(t, svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		OrganizationID: "org1",
		PlanID:         "42",
		BillingPeriod:  webhookdomain.BillingMonthly,
	}))

	subs, err := repository.Provide().FindByOrganization(context.Background(), conn, "org1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, subs[0].Status)
}

func TestUpgradeRequiresOrgAndPlan(t *testing.T) {
	conn := setupDB(t)
	svc := newService(t, conn, repository.Provide(), clock.NewFakeClock(time.Now()))

	assert.Error(t, svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		PlanID:        "42",
		BillingPeriod: webhookdomain.BillingMonthly,
	}))
	assert.Error(t, svc.Upgrade(context.Background(), subscriptiondomain.UpgradeRequest{
		OrganizationID: "org1",
		BillingPeriod:  webhookdomain.BillingMonthly,
	}))
}

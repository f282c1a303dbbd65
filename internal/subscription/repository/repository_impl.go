package repository

import (
	"context"
	"time"

	"github.com/buildacademy/paycore/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ExpireActive(ctx context.Context, db *gorm.DB, organizationID string, cancelledAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE organization_subscriptions
		 SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE organization_id = ? AND status = ?`,
		domain.SubscriptionStatusExpired,
		cancelledAt,
		cancelledAt,
		organizationID,
		domain.SubscriptionStatusActive,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.OrganizationSubscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO organization_subscriptions (
			id, organization_id, plan_id, billing_period, status,
			started_at, expires_at, cancelled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.OrganizationID,
		subscription.PlanID,
		subscription.BillingPeriod,
		subscription.Status,
		subscription.StartedAt,
		subscription.ExpiresAt,
		subscription.CancelledAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) SetCurrentPlan(ctx context.Context, db *gorm.DB, organizationID, planID string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET current_plan_id = ?, updated_at = ?
		 WHERE id = ?`,
		planID,
		updatedAt,
		organizationID,
	).Error
}

func (r *repo) FindByOrganization(ctx context.Context, db *gorm.DB, organizationID string) ([]domain.OrganizationSubscription, error) {
	var items []domain.OrganizationSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, plan_id, billing_period, status,
			started_at, expires_at, cancelled_at, created_at, updated_at
		 FROM organization_subscriptions
		 WHERE organization_id = ?
		 ORDER BY started_at`,
		organizationID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

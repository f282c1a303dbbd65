// Package domain contains persistence models for organization subscriptions.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	webhookdomain "github.com/buildacademy/paycore/internal/webhook/domain"
	"gorm.io/gorm"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// OrganizationSubscription is one row per activation event. At most one row
// per organization holds status=active at any time; activating a new
// subscription first retires the previous active row.
type OrganizationSubscription struct {
	ID             snowflake.ID       `gorm:"primaryKey"`
	OrganizationID string             `gorm:"type:text;not null;index"`
	PlanID         string             `gorm:"type:text;not null"`
	BillingPeriod  string             `gorm:"type:text;not null"`
	Status         SubscriptionStatus `gorm:"type:text;not null"`
	StartedAt      time.Time          `gorm:"not null"`
	ExpiresAt      time.Time          `gorm:"not null"`
	CancelledAt    *time.Time         `gorm:""`
	CreatedAt      time.Time          `gorm:"not null"`
	UpdatedAt      time.Time          `gorm:"not null"`
}

// TableName sets the database table name.
func (OrganizationSubscription) TableName() string { return "organization_subscriptions" }

type Repository interface {
	ExpireActive(ctx context.Context, db *gorm.DB, organizationID string, cancelledAt time.Time) (int64, error)
	Insert(ctx context.Context, db *gorm.DB, subscription *OrganizationSubscription) error
	SetCurrentPlan(ctx context.Context, db *gorm.DB, organizationID, planID string, updatedAt time.Time) error
	FindByOrganization(ctx context.Context, db *gorm.DB, organizationID string) ([]OrganizationSubscription, error)
}

// UpgradeRequest carries a decoded, plan-resolved subscription purchase.
type UpgradeRequest struct {
	OrganizationID string
	PlanID         string
	BillingPeriod  webhookdomain.BillingPeriod
}

// Service supersedes any existing active subscription with a new one.
type Service interface {
	Upgrade(ctx context.Context, req UpgradeRequest) error
}

package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	subscriptiondomain "github.com/buildacademy/paycore/internal/subscription/domain"
	webhookdomain "github.com/buildacademy/paycore/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Upgrade retires any active subscription for the organization, installs the
// new one, and repoints the organization's current plan.
//
// TODO: wrap the expire and insert steps in one transaction; a crash between
// them leaves the organization with zero active subscriptions.
func (s *Service) Upgrade(ctx context.Context, req subscriptiondomain.UpgradeRequest) error {
	if req.OrganizationID == "" || req.PlanID == "" {
		return errors.New("subscription upgrade requires organization and plan")
	}

	now := s.clock.Now()

	// Failing to retire the old record must not block granting the new one.
	if _, err := s.repo.ExpireActive(ctx, s.db, req.OrganizationID, now); err != nil {
		s.log.Warn("failed to expire previous subscription",
			zap.String("organization_id", req.OrganizationID),
			zap.Error(err),
		)
	}

	expiresAt := now.AddDate(0, 1, 0)
	if req.BillingPeriod == webhookdomain.BillingAnnual {
		expiresAt = now.AddDate(1, 0, 0)
	}

	subscription := &subscriptiondomain.OrganizationSubscription{
		ID:             s.genID.Generate(),
		OrganizationID: req.OrganizationID,
		PlanID:         req.PlanID,
		BillingPeriod:  string(req.BillingPeriod),
		Status:         subscriptiondomain.SubscriptionStatusActive,
		StartedAt:      now,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, subscription); err != nil {
		s.log.Error("failed to install new subscription",
			zap.String("organization_id", req.OrganizationID),
			zap.String("plan_id", req.PlanID),
			zap.Error(err),
		)
		return err
	}

	if err := s.repo.SetCurrentPlan(ctx, s.db, req.OrganizationID, req.PlanID, now); err != nil {
		s.log.Error("failed to update organization plan pointer",
			zap.String("organization_id", req.OrganizationID),
			zap.String("plan_id", req.PlanID),
			zap.Error(err),
		)
		return err
	}

	s.log.Info("subscription upgraded",
		zap.String("organization_id", req.OrganizationID),
		zap.String("plan_id", req.PlanID),
		zap.String("billing_period", string(req.BillingPeriod)),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

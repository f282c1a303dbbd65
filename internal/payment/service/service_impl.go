package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	obsmetrics "github.com/buildacademy/paycore/internal/observability/metrics"
	paymentdomain "github.com/buildacademy/paycore/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// WriteEvent appends one audit row. It runs before classification so the
// ledger keeps evidence of events that later fail or get skipped.
func (s *Service) WriteEvent(ctx context.Context, event *paymentdomain.EventRecord) error {
	if event.ID == 0 {
		event.ID = s.genID.Generate()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.clock.Now()
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	return s.repo.InsertEvent(ctx, s.db, event)
}

// RecordPayment inserts the ledger-of-record row. A duplicate-key conflict
// means another delivery of the same capture already recorded it; that is a
// success, not an error.
func (s *Service) RecordPayment(ctx context.Context, payment *paymentdomain.Payment) (bool, error) {
	if payment.ID == 0 {
		payment.ID = s.genID.Generate()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = s.clock.Now()
	}
	payment.Provider = strings.ToLower(strings.TrimSpace(payment.Provider))

	inserted, err := s.repo.InsertPayment(ctx, s.db, payment)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.log.Info("payment already recorded",
			zap.String("provider", payment.Provider),
			zap.String("provider_payment_id", payment.ProviderPaymentID),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordPaymentDuplicate(ctx, payment.Provider)
		}
		return false, nil
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPayment(ctx, payment.Provider, payment.ProductType)
	}
	return true, nil
}

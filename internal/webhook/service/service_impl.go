// Package service implements the reconciliation engine: it drives a webhook
// event from RECEIVED through normalization, decoding, and classification to
// a terminal APPLIED, SKIPPED, or FAILED state.
package service

import (
	"context"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	enrollmentdomain "github.com/buildacademy/paycore/internal/enrollment/domain"
	obsmetrics "github.com/buildacademy/paycore/internal/observability/metrics"
	paymentdomain "github.com/buildacademy/paycore/internal/payment/domain"
	"github.com/buildacademy/paycore/internal/paypal"
	plandomain "github.com/buildacademy/paycore/internal/plan/domain"
	subscriptiondomain "github.com/buildacademy/paycore/internal/subscription/domain"
	"github.com/buildacademy/paycore/internal/webhook/decoder"
	"github.com/buildacademy/paycore/internal/webhook/domain"
	"github.com/buildacademy/paycore/internal/webhook/normalizer"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const providerName = "paypal"

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	PayPal          *paypal.Client `optional:"true"`
	PaymentSvc      paymentdomain.Service
	EnrollmentSvc   enrollmentdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PlanRepo        plandomain.Repository
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	normalizer      *normalizer.Normalizer
	paymentSvc      paymentdomain.Service
	enrollmentSvc   enrollmentdomain.Service
	subscriptionSvc subscriptiondomain.Service
	planRepo        plandomain.Repository
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	var orders normalizer.OrderFetcher
	if p.PayPal != nil {
		orders = p.PayPal
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("webhook.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		normalizer:      normalizer.New(orders, p.Log),
		paymentSvc:      p.PaymentSvc,
		enrollmentSvc:   p.EnrollmentSvc,
		subscriptionSvc: p.SubscriptionSvc,
		planRepo:        p.PlanRepo,
		obsMetrics:      p.ObsMetrics,
	}
}

// Process reconciles one webhook delivery. It returns a non-nil error only
// for unrecoverable failures (unparseable body, store failures); everything
// else terminates in a Result the endpoint reports as success.
//
// The provider delivers at-least-once and out of order, so the same event may
// arrive twice, concurrently. Idempotency comes from the payments uniqueness
// constraint and the replace-in-place mutators, never from check-then-act.
func (s *Service) Process(ctx context.Context, payload []byte) (*domain.Result, error) {
	raw, err := domain.ParseRawEvent(payload)
	if err != nil {
		// The one case with no ledger entry: there is nothing to record.
		return nil, err
	}

	event := s.normalizer.Normalize(ctx, raw)
	intent := decoder.Decode(event.CustomID, event.InvoiceID)

	// The ledger write happens before classification so failed and skipped
	// events leave evidence too.
	if err := s.writeLedger(ctx, payload, event, intent); err != nil {
		return nil, err
	}

	result, err := s.reconcile(ctx, event, intent)
	if result != nil && s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, providerName, string(result.State))
	}
	return result, err
}

func (s *Service) writeLedger(ctx context.Context, payload []byte, event *domain.NormalizedEvent, intent *domain.PurchaseIntent) error {
	record := &paymentdomain.EventRecord{
		Provider:          providerName,
		ProviderEventID:   event.EventID,
		ProviderEventType: event.EventType,
		Status:            event.Status,
		Payload:           datatypes.JSON(payload),
		OrderID:           event.OrderID,
		InvoiceID:         event.InvoiceID,
		Amount:            event.Amount,
		Currency:          event.Currency,
	}
	if intent != nil {
		record.UserID = intent.UserID
		record.CourseID = intent.CourseID
	}
	return s.paymentSvc.WriteEvent(ctx, record)
}

func (s *Service) reconcile(ctx context.Context, event *domain.NormalizedEvent, intent *domain.PurchaseIntent) (*domain.Result, error) {
	if !event.Approved() {
		s.log.Info("webhook event skipped",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.String("status", event.Status),
		)
		return &domain.Result{State: domain.StateSkipped, EventType: event.EventType}, nil
	}

	if intent.Empty() {
		return s.fail(event, domain.ReasonNoIntent), nil
	}

	switch intent.Classify() {
	case domain.ProductSubscription:
		return s.applySubscription(ctx, event, intent)
	case domain.ProductCourse:
		return s.applyCourse(ctx, event, intent)
	default:
		return s.fail(event, domain.ReasonUnknownProduct), nil
	}
}

func (s *Service) applySubscription(ctx context.Context, event *domain.NormalizedEvent, intent *domain.PurchaseIntent) (*domain.Result, error) {
	if reason := subscriptionGap(event, intent); reason != "" {
		return s.fail(event, reason), nil
	}

	planID, err := s.resolvePlanID(ctx, intent)
	if err != nil {
		return nil, err
	}
	if planID == "" {
		return s.fail(event, domain.ReasonPlanNotFound), nil
	}

	if err := s.subscriptionSvc.Upgrade(ctx, subscriptiondomain.UpgradeRequest{
		OrganizationID: intent.OrganizationID,
		PlanID:         planID,
		BillingPeriod:  intent.BillingPeriod,
	}); err != nil {
		return nil, err
	}

	if _, err := s.paymentSvc.RecordPayment(ctx, &paymentdomain.Payment{
		Provider:          providerName,
		ProviderPaymentID: event.CaptureID,
		Amount:            event.Amount,
		Currency:          event.Currency,
		Status:            event.Status,
		ProductType:       string(domain.ProductSubscription),
		UserID:            intent.UserID,
		OrganizationID:    intent.OrganizationID,
		PlanID:            planID,
		BillingPeriod:     string(intent.BillingPeriod),
	}); err != nil {
		return nil, err
	}

	return &domain.Result{State: domain.StateApplied, EventType: event.EventType, Processed: true}, nil
}

func (s *Service) applyCourse(ctx context.Context, event *domain.NormalizedEvent, intent *domain.PurchaseIntent) (*domain.Result, error) {
	if reason := courseGap(event, intent); reason != "" {
		return s.fail(event, reason), nil
	}

	if _, err := s.paymentSvc.RecordPayment(ctx, &paymentdomain.Payment{
		Provider:          providerName,
		ProviderPaymentID: event.CaptureID,
		Amount:            event.Amount,
		Currency:          event.Currency,
		Status:            event.Status,
		ProductType:       string(domain.ProductCourse),
		UserID:            intent.UserID,
		CourseID:          intent.CourseID,
	}); err != nil {
		return nil, err
	}

	if err := s.enrollmentSvc.Grant(ctx, intent.UserID, intent.CourseID, intent.Months); err != nil {
		return nil, err
	}

	return &domain.Result{State: domain.StateApplied, EventType: event.EventType, Processed: true}, nil
}

// resolvePlanID returns the plan id the intent carries, or looks one up by
// slug. An empty return means the slug resolved to nothing.
func (s *Service) resolvePlanID(ctx context.Context, intent *domain.PurchaseIntent) (string, error) {
	if intent.PlanID != "" {
		return intent.PlanID, nil
	}
	plan, err := s.planRepo.FindBySlug(ctx, s.db, intent.PlanSlug)
	if err != nil {
		return "", err
	}
	if plan == nil {
		return "", nil
	}
	return strconv.FormatInt(plan.ID.Int64(), 10), nil
}

func subscriptionGap(event *domain.NormalizedEvent, intent *domain.PurchaseIntent) string {
	switch {
	case intent.UserID == "" && intent.OrganizationID == "":
		return domain.ReasonMissingUser
	case intent.OrganizationID == "":
		return domain.ReasonMissingOrg
	case intent.BillingPeriod == "":
		return domain.ReasonMissingPeriod
	case intent.PlanID == "" && intent.PlanSlug == "":
		return domain.ReasonPlanNotFound
	case event.CaptureID == "":
		return domain.ReasonMissingCaptureID
	}
	return ""
}

func courseGap(event *domain.NormalizedEvent, intent *domain.PurchaseIntent) string {
	switch {
	case intent.UserID == "":
		return domain.ReasonMissingUser
	case intent.CourseID == "":
		return domain.ReasonMissingCourse
	case event.CaptureID == "":
		return domain.ReasonMissingCaptureID
	}
	return ""
}

// fail marks an approved-but-unreconcilable event. The endpoint still answers
// success so the provider does not retry an event that can never decode; the
// gap stays visible through the ledger and logs.
func (s *Service) fail(event *domain.NormalizedEvent, reason string) *domain.Result {
	s.log.Error("webhook event failed reconciliation",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("reason", reason),
	)
	return &domain.Result{State: domain.StateFailed, EventType: event.EventType, Reason: reason}
}

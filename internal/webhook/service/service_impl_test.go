package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/buildacademy/paycore/internal/clock"
	enrollmentrepo "github.com/buildacademy/paycore/internal/enrollment/repository"
	enrollmentservice "github.com/buildacademy/paycore/internal/enrollment/service"
	paymentrepo "github.com/buildacademy/paycore/internal/payment/repository"
	paymentservice "github.com/buildacademy/paycore/internal/payment/service"
	plandomain "github.com/buildacademy/paycore/internal/plan/domain"
	planrepo "github.com/buildacademy/paycore/internal/plan/repository"
	subscriptiondomain "github.com/buildacademy/paycore/internal/subscription/domain"
	subscriptionrepo "github.com/buildacademy/paycore/internal/subscription/repository"
	subscriptionservice "github.com/buildacademy/paycore/internal/subscription/service"
	"github.com/buildacademy/paycore/internal/webhook/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	enrollmentdomain "github.com/buildacademy/paycore/internal/enrollment/domain"
	paymentdomain "github.com/buildacademy/paycore/internal/payment/domain"
)

type testEngine struct {
	svc      *Service
	db       *gorm.DB
	clock    *clock.FakeClock
	planRepo plandomain.Repository
	planID   snowflake.ID
}

func setupEngine(t *testing.T) *testEngine {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&paymentdomain.EventRecord{},
		&paymentdomain.Payment{},
		&enrollmentdomain.Enrollment{},
		&plandomain.Plan{},
		&subscriptiondomain.OrganizationSubscription{},
	))
	require.NoError(t, conn.Exec(
		`CREATE TABLE organizations (
			id TEXT PRIMARY KEY,
			name TEXT,
			current_plan_id TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	).Error)
	require.NoError(t, conn.Exec(
		`INSERT INTO organizations (id, name) VALUES ('org1', 'Acme Builders')`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	planRepo := planrepo.Provide()
	planID := node.Generate()
	require.NoError(t, planRepo.Upsert(context.Background(), conn, &plandomain.Plan{
		ID:                 planID,
		Slug:               "team",
		Name:               "Team",
		CourseAccessMonths: 12,
		CreatedAt:          clk.Now(),
		UpdatedAt:          clk.Now(),
	}))

	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  paymentrepo.Provide(),
	})
	enrollmentSvc := enrollmentservice.NewService(enrollmentservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  enrollmentrepo.Provide(),
	})
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  subscriptionrepo.Provide(),
	})

	svc := NewService(Params{
		DB:              conn,
		Log:             log,
		GenID:           node,
		Clock:           clk,
		PaymentSvc:      paymentSvc,
		EnrollmentSvc:   enrollmentSvc,
		SubscriptionSvc: subscriptionSvc,
		PlanRepo:        planRepo,
	})

	return &testEngine{svc: svc, db: conn, clock: clk, planRepo: planRepo, planID: planID}
}

func (e *testEngine) process(t *testing.T, payload map[string]any) (*domain.Result, error) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.svc.Process(context.Background(), body)
}

func (e *testEngine) count(t *testing.T, table string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Raw("SELECT COUNT(*) FROM "+table).Scan(&count).Error)
	return count
}

func courseApprovedPayload(eventID, captureID string) map[string]any {
	return map[string]any{
		"id":         eventID,
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": map[string]any{
			"id":     "ORDER-1",
			"status": "APPROVED",
			"purchase_units": []any{
				map[string]any{
					"custom_id": "user1|courseA",
					"amount": map[string]any{
						"value":         "49.99",
						"currency_code": "USD",
					},
					"payments": map[string]any{
						"captures": []any{
							map[string]any{"id": captureID},
						},
					},
				},
			},
		},
	}
}

func TestProcessCoursePurchase(t *testing.T) {
	e := setupEngine(t)

	result, err := e.process(t, courseApprovedPayload("WH-1", "CAP-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateApplied, result.State)
	assert.True(t, result.Processed)

	assert.EqualValues(t, 1, e.count(t, "payments"))
	assert.EqualValues(t, 1, e.count(t, "payment_events"))

	enrollment, err := enrollmentrepo.Provide().FindByUserCourse(context.Background(), e.db, "user1", "courseA")
	require.NoError(t, err)
	require.NotNil(t, enrollment)
	assert.Equal(t, enrollmentdomain.EnrollmentStatusActive, enrollment.Status)
	// Pipe-encoded purchases carry no months, so access is perpetual.
	assert.Nil(t, enrollment.ExpiresAt)
}

func TestProcessDuplicateDeliveriesRecordOnePayment(t *testing.T) {
	e := setupEngine(t)

	for i := 0; i < 3; i++ {
		result, err := e.process(t, courseApprovedPayload("WH-1", "CAP-1"))
		require.NoError(t, err)
		assert.Equal(t, domain.StateApplied, result.State)
	}

	// Every delivery leaves a ledger row; the payments table stays singular.
	assert.EqualValues(t, 1, e.count(t, "payments"))
	assert.EqualValues(t, 3, e.count(t, "payment_events"))
	assert.EqualValues(t, 1, e.count(t, "enrollments"))
}

func TestProcessSkipsUnapprovedEvent(t *testing.T) {
	e := setupEngine(t)

	result, err := e.process(t, map[string]any{
		"id":         "WH-2",
		"event_type": "PAYMENT.CAPTURE.PENDING",
		"resource": map[string]any{
			"id":        "CAP-2",
			"status":    "PENDING",
			"custom_id": "user1|courseA",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateSkipped, result.State)
	assert.False(t, result.Processed)

	assert.EqualValues(t, 0, e.count(t, "payments"))
	assert.EqualValues(t, 1, e.count(t, "payment_events"))
}

func TestProcessApprovedWithoutIntentFails(t *testing.T) {
	e := setupEngine(t)

	result, err := e.process(t, map[string]any{
		"id":         "WH-3",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": map[string]any{
			"id":     "ORDER-3",
			"status": "APPROVED",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Equal(t, domain.ReasonNoIntent, result.Reason)
	assert.False(t, result.Processed)
	assert.EqualValues(t, 1, e.count(t, "payment_events"))
}

func TestProcessInvalidPayload(t *testing.T) {
	e := setupEngine(t)

	_, err := e.svc.Process(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.EqualValues(t, 0, e.count(t, "payment_events"))
}

func subscriptionPayload(eventID, captureID, customID string) map[string]any {
	return map[string]any{
		"id":         eventID,
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": map[string]any{
			"id":        captureID,
			"status":    "COMPLETED",
			"custom_id": customID,
			"amount": map[string]any{
				"value":         "299.00",
				"currency_code": "USD",
			},
			"supplementary_data": map[string]any{
				"related_ids": map[string]any{"order_id": "ORDER-9"},
			},
		},
	}
}

func TestProcessSubscriptionBySlug(t *testing.T) {
	e := setupEngine(t)

	customID := base64.StdEncoding.EncodeToString(
		[]byte(`{"u":"user1","t":"subscription","ps":"team","o":"org1","bp":"annual"}`),
	)
	result, err := e.process(t, subscriptionPayload("WH-4", "CAP-4", customID))
	require.NoError(t, err)
	assert.Equal(t, domain.StateApplied, result.State)
	assert.True(t, result.Processed)

	subs, err := subscriptionrepo.Provide().FindByOrganization(context.Background(), e.db, "org1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, subs[0].Status)
	assert.Equal(t, e.planID.String(), subs[0].PlanID)
	assert.True(t, subs[0].ExpiresAt.Equal(e.clock.Now().AddDate(1, 0, 0)))

	var currentPlanID string
	require.NoError(t, e.db.Raw(
		`SELECT current_plan_id FROM organizations WHERE id = 'org1'`,
	).Scan(&currentPlanID).Error)
	assert.Equal(t, e.planID.String(), currentPlanID)

	assert.EqualValues(t, 1, e.count(t, "payments"))
}

func TestProcessSubscriptionSupersedesActive(t *testing.T) {
	e := setupEngine(t)

	customID := base64.StdEncoding.EncodeToString(
		[]byte(`{"u":"user1","t":"subscription","ps":"team","o":"org1","bp":"monthly"}`),
	)

	_, err := e.process(t, subscriptionPayload("WH-5", "CAP-5", customID))
	require.NoError(t, err)

	e.clock.Advance(24 * time.Hour)

	_, err = e.process(t, subscriptionPayload("WH-6", "CAP-6", customID))
	require.NoError(t, err)

	subs, err := subscriptionrepo.Provide().FindByOrganization(context.Background(), e.db, "org1")
	require.NoError(t, err)
	require.Len(t, subs, 2)

	var active, expired int
	for _, sub := range subs {
		switch sub.Status {
		case subscriptiondomain.SubscriptionStatusActive:
			active++
		case subscriptiondomain.SubscriptionStatusExpired:
			expired++
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, expired)
	assert.EqualValues(t, 2, e.count(t, "payments"))
}

func TestProcessSubscriptionMissingPeriodFails(t *testing.T) {
	e := setupEngine(t)

	customID := base64.StdEncoding.EncodeToString(
		[]byte(`{"u":"user1","t":"subscription","ps":"team","o":"org1"}`),
	)
	result, err := e.process(t, subscriptionPayload("WH-7", "CAP-7", customID))
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Equal(t, domain.ReasonMissingPeriod, result.Reason)

	assert.EqualValues(t, 0, e.count(t, "organization_subscriptions"))
	assert.EqualValues(t, 0, e.count(t, "payments"))
	assert.EqualValues(t, 1, e.count(t, "payment_events"))
}

func TestProcessSubscriptionUnknownSlugFails(t *testing.T) {
	e := setupEngine(t)

	customID := base64.StdEncoding.EncodeToString(
		[]byte(`{"u":"user1","t":"subscription","ps":"no-such-plan","o":"org1","bp":"monthly"}`),
	)
	result, err := e.process(t, subscriptionPayload("WH-8", "CAP-8", customID))
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Equal(t, domain.ReasonPlanNotFound, result.Reason)
	assert.EqualValues(t, 0, e.count(t, "organization_subscriptions"))
}

func TestProcessCourseMonthsFromInvoice(t *testing.T) {
	e := setupEngine(t)

	result, err := e.process(t, map[string]any{
		"id":         "WH-9",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": map[string]any{
			"id":     "ORDER-9",
			"status": "APPROVED",
			"purchase_units": []any{
				map[string]any{
					"invoice_id": "u:user1;c:courseA;months:12",
					"amount": map[string]any{
						"value":         "99.00",
						"currency_code": "USD",
					},
					"payments": map[string]any{
						"captures": []any{
							map[string]any{"id": "CAP-9"},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateApplied, result.State)

	enrollment, err := enrollmentrepo.Provide().FindByUserCourse(context.Background(), e.db, "user1", "courseA")
	require.NoError(t, err)
	require.NotNil(t, enrollment)
	require.NotNil(t, enrollment.ExpiresAt)
	assert.True(t, enrollment.ExpiresAt.Equal(e.clock.Now().AddDate(0, 12, 0)))
}

func TestProcessRepurchaseReplacesExpiry(t *testing.T) {
	e := setupEngine(t)

	_, err := e.process(t, courseApprovedPayload("WH-10", "CAP-10"))
	require.NoError(t, err)

	e.clock.Advance(48 * time.Hour)

	result, err := e.process(t, courseApprovedPayload("WH-11", "CAP-11"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateApplied, result.State)

	// A second purchase replaces the enrollment row instead of stacking one.
	assert.EqualValues(t, 1, e.count(t, "enrollments"))
	assert.EqualValues(t, 2, e.count(t, "payments"))

	enrollment, err := enrollmentrepo.Provide().FindByUserCourse(context.Background(), e.db, "user1", "courseA")
	require.NoError(t, err)
	require.NotNil(t, enrollment)
	assert.True(t, enrollment.StartedAt.Equal(e.clock.Now()))
}

func TestProcessCourseMissingCaptureIDFails(t *testing.T) {
	e := setupEngine(t)

	result, err := e.process(t, map[string]any{
		"id":         "WH-12",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": map[string]any{
			"id":     "ORDER-12",
			"status": "APPROVED",
			"purchase_units": []any{
				map[string]any{"custom_id": "user1|courseA"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Equal(t, domain.ReasonMissingCaptureID, result.Reason)
	assert.EqualValues(t, 0, e.count(t, "payments"))
}

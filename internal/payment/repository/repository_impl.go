package repository

import (
	"context"

	"github.com/buildacademy/paycore/internal/payment/domain"
	"github.com/buildacademy/paycore/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, conn *gorm.DB, event *domain.EventRecord) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, provider_event_type, status,
			payload, order_id, invoice_id, user_id, course_id, amount, currency, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.ProviderEventType,
		event.Status,
		event.Payload,
		event.OrderID,
		event.InvoiceID,
		event.UserID,
		event.CourseID,
		event.Amount,
		event.Currency,
		event.ReceivedAt,
	).Error
}

// InsertPayment returns false when the (provider, provider_payment_id)
// constraint fires. No pre-insert existence check: two concurrent deliveries
// both reach the insert and the constraint settles which one wins.
func (r *repo) InsertPayment(ctx context.Context, conn *gorm.DB, payment *domain.Payment) (bool, error) {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, provider, provider_payment_id, amount, currency, status,
			product_type, user_id, course_id, organization_id, plan_id, billing_period, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.Provider,
		payment.ProviderPaymentID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.ProductType,
		payment.UserID,
		payment.CourseID,
		payment.OrganizationID,
		payment.PlanID,
		payment.BillingPeriod,
		payment.CreatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

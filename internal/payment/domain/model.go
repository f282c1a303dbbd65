// Package domain contains persistence models for the webhook ledger and the
// payment ledger-of-record.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is the append-only audit row written for every webhook event
// processed, whatever the outcome. Rows are never updated or deleted, and
// duplicate provider deliveries produce duplicate rows on purpose.
type EventRecord struct {
	ID                snowflake.ID   `gorm:"primaryKey"`
	Provider          string         `gorm:"type:text;not null"`
	ProviderEventID   string         `gorm:"type:text;not null;index"`
	ProviderEventType string         `gorm:"type:text;not null"`
	Status            string         `gorm:"type:text"`
	Payload           datatypes.JSON `gorm:"type:jsonb"`
	OrderID           string         `gorm:"type:text"`
	InvoiceID         string         `gorm:"type:text"`
	UserID            string         `gorm:"type:text"`
	CourseID          string         `gorm:"type:text"`
	Amount            string         `gorm:"type:text"`
	Currency          string         `gorm:"type:text"`
	ReceivedAt        time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }

// Payment is the ledger-of-record: one row per provider capture id. The
// unique constraint on (provider, provider_payment_id) is the idempotency
// mechanism for duplicate webhook delivery.
type Payment struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	Provider          string       `gorm:"type:text;not null;uniqueIndex:idx_payments_provider_payment"`
	ProviderPaymentID string       `gorm:"type:text;not null;uniqueIndex:idx_payments_provider_payment"`
	Amount            string       `gorm:"type:text"`
	Currency          string       `gorm:"type:text"`
	Status            string       `gorm:"type:text"`
	ProductType       string       `gorm:"type:text;not null"`
	UserID            string       `gorm:"type:text"`
	CourseID          string       `gorm:"type:text"`
	OrganizationID    string       `gorm:"type:text"`
	PlanID            string       `gorm:"type:text"`
	BillingPeriod     string       `gorm:"type:text"`
	CreatedAt         time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) error
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
}

// Service is the ledger writer plus the idempotent payment recorder.
type Service interface {
	WriteEvent(ctx context.Context, event *EventRecord) error
	RecordPayment(ctx context.Context, payment *Payment) (bool, error)
}

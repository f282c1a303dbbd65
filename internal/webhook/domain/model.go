// Package domain contains the wire and decoded representations of provider
// webhook events.
package domain

import "encoding/json"

// RawEvent is the provider's notification payload as delivered. The resource
// shape varies per event type, so it stays an untyped object graph until the
// normalizer has picked it apart.
type RawEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Resource  map[string]any `json:"resource"`
}

// ParseRawEvent decodes an inbound webhook body. A body that does not parse is
// the one case where no ledger entry is written.
func ParseRawEvent(payload []byte) (*RawEvent, error) {
	var event RawEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	return &event, nil
}

// NormalizedEvent is the flat view the engine works with. Absent fields are
// empty strings; amounts stay in the provider's decimal string form since the
// engine copies them through without arithmetic.
type NormalizedEvent struct {
	EventID   string
	EventType string
	OrderID   string
	InvoiceID string
	CustomID  string
	CaptureID string
	Amount    string
	Currency  string
	Status    string // upper-cased for uniform comparison
}

const (
	checkoutOrderApproved = "CHECKOUT.ORDER.APPROVED"
	captureCompleted      = "PAYMENT.CAPTURE.COMPLETED"
)

// Approved reports whether the event represents a settled purchase. Many
// deliveries are intermediate provider states and must be skipped, not failed.
func (e *NormalizedEvent) Approved() bool {
	if e == nil {
		return false
	}
	if e.EventType == checkoutOrderApproved || e.EventType == captureCompleted {
		return true
	}
	switch e.Status {
	case "COMPLETED", "APPROVED":
		return true
	}
	return false
}

// ProductType discriminates what a customer purchased.
type ProductType string

const (
	ProductCourse       ProductType = "course"
	ProductSubscription ProductType = "subscription"
)

// BillingPeriod is the subscription cadence embedded in checkout metadata.
type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingAnnual  BillingPeriod = "annual"
)

// PurchaseIntent is the decoded purchase, independent of which encoding
// generation carried it. Coupon fields are audit-only.
type PurchaseIntent struct {
	ProductType    ProductType
	UserID         string
	CourseID       string
	CouponCode     string
	CouponID       string
	OrganizationID string
	PlanID         string
	PlanSlug       string
	BillingPeriod  BillingPeriod
	Months         int
}

// Empty reports whether decoding produced nothing usable.
func (i *PurchaseIntent) Empty() bool {
	return i == nil || (i.UserID == "" && i.OrganizationID == "" && i.CourseID == "" && i.PlanID == "" && i.PlanSlug == "")
}

// Classify resolves the product type, inferring it for encoding generations
// that never carried one explicitly.
func (i *PurchaseIntent) Classify() ProductType {
	if i == nil {
		return ""
	}
	if i.ProductType != "" {
		return i.ProductType
	}
	if i.OrganizationID != "" || i.PlanID != "" || i.PlanSlug != "" {
		return ProductSubscription
	}
	if i.CourseID != "" {
		return ProductCourse
	}
	return ""
}

// State is the engine's position in the reconciliation lifecycle.
type State string

const (
	StateReceived               State = "RECEIVED"
	StateNormalized             State = "NORMALIZED"
	StateDecoded                State = "DECODED"
	StateClassifiedSubscription State = "CLASSIFIED_SUBSCRIPTION"
	StateClassifiedCourse       State = "CLASSIFIED_COURSE"
	StateIncomplete             State = "INCOMPLETE"
	StateApplied                State = "APPLIED"
	StateSkipped                State = "SKIPPED"
	StateFailed                 State = "FAILED"
)

// Result is the terminal outcome reported back to the webhook endpoint.
type Result struct {
	State     State
	EventType string
	Processed bool
	Reason    string
}

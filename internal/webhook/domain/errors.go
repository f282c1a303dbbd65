package domain

import "errors"

var (
	ErrInvalidPayload = errors.New("invalid_payload")
)

// FAILED reasons surfaced in logs and the ledger.
const (
	ReasonNoIntent         = "no_intent"
	ReasonUnknownProduct   = "unknown_product_type"
	ReasonMissingUser      = "missing_user_id"
	ReasonMissingCourse    = "missing_course_id"
	ReasonMissingOrg       = "missing_organization_id"
	ReasonMissingPeriod    = "missing_billing_period"
	ReasonMissingCaptureID = "missing_capture_id"
	ReasonPlanNotFound     = "plan_not_found"
)

// Package decoder recovers purchase intents from the opaque custom_id and
// invoice_id strings echoed back by the payment provider.
//
// The checkout flow changed its metadata encoding twice while older webhooks
// could still arrive for in-flight orders, so every prior generation is kept
// as a pure string -> intent function and tried in fixed priority order.
package decoder

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/buildacademy/paycore/internal/webhook/domain"
)

// Decode turns custom_id (preferred) or invoice_id into a PurchaseIntent.
// It never fails: an undecodable pair yields nil and the engine decides what
// that means for the event.
func Decode(customID, invoiceID string) *domain.PurchaseIntent {
	var intent *domain.PurchaseIntent

	customID = strings.TrimSpace(customID)
	if strings.Contains(customID, "|") {
		intent = decodePipe(customID)
	} else if customID != "" {
		intent = decodeBase64JSON(customID)
	}

	// Invoice fallback only runs when the newer generations recovered no
	// principal. It is the sole source of the months field.
	if intent == nil || (intent.UserID == "" && intent.OrganizationID == "") {
		if fallback := decodeInvoice(invoiceID); fallback != nil {
			intent = fallback
		}
	}

	if intent != nil && intent.Empty() {
		return nil
	}
	return intent
}

// decodePipe handles the v2 pipe-delimited generation:
//
//	user|plan|org|monthly     subscription
//	user|course|code|couponID course purchase with coupon reference
//	user|course               course purchase
func decodePipe(s string) *domain.PurchaseIntent {
	parts := strings.Split(s, "|")
	switch len(parts) {
	case 4:
		period := strings.TrimSpace(parts[3])
		if period == string(domain.BillingMonthly) || period == string(domain.BillingAnnual) {
			return &domain.PurchaseIntent{
				ProductType:    domain.ProductSubscription,
				UserID:         strings.TrimSpace(parts[0]),
				PlanID:         strings.TrimSpace(parts[1]),
				OrganizationID: strings.TrimSpace(parts[2]),
				BillingPeriod:  domain.BillingPeriod(period),
			}
		}
		return &domain.PurchaseIntent{
			ProductType: domain.ProductCourse,
			UserID:      strings.TrimSpace(parts[0]),
			CourseID:    strings.TrimSpace(parts[1]),
			CouponCode:  strings.TrimSpace(parts[2]),
			CouponID:    strings.TrimSpace(parts[3]),
		}
	case 2:
		return &domain.PurchaseIntent{
			ProductType: domain.ProductCourse,
			UserID:      strings.TrimSpace(parts[0]),
			CourseID:    strings.TrimSpace(parts[1]),
		}
	default:
		return nil
	}
}

// decodeBase64JSON handles both base64-JSON generations. Decode failures are
// swallowed so the invoice fallback still gets its turn.
func decodeBase64JSON(s string) *domain.PurchaseIntent {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil
		}
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}

	if _, short := fields["u"]; short {
		return mapFields(expandShortKeys(fields))
	}
	if _, short := fields["t"]; short {
		return mapFields(expandShortKeys(fields))
	}
	if _, legacy := fields["user_id"]; legacy {
		return mapFields(fields)
	}
	if _, legacy := fields["product_type"]; legacy {
		return mapFields(fields)
	}
	return nil
}

// decodeInvoice handles the oldest generation: a ;-separated key:value list
// with single-letter keys.
func decodeInvoice(s string) *domain.PurchaseIntent {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	aliases := map[string]string{
		"sub": "subscription",
		"u":   "user",
		"o":   "organization_id",
		"bp":  "billing_period",
		"ts":  "timestamp",
		"p":   "plan_id",
		"c":   "course",
		"cpn": "coupon",
	}

	fields := map[string]any{}
	for _, token := range strings.Split(s, ";") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		pair := strings.SplitN(token, ":", 2)
		if len(pair) != 2 {
			continue
		}
		key := strings.TrimSpace(pair[0])
		if long, ok := aliases[key]; ok {
			key = long
		}
		fields[key] = strings.TrimSpace(pair[1])
	}
	if len(fields) == 0 {
		return nil
	}
	return mapFields(fields)
}

func expandShortKeys(fields map[string]any) map[string]any {
	long := map[string]string{
		"u":  "user_id",
		"t":  "product_type",
		"ps": "plan_slug",
		"p":  "plan_id",
		"o":  "organization_id",
		"bp": "billing_period",
		"c":  "course_id",
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if mapped, ok := long[key]; ok {
			out[mapped] = value
			continue
		}
		out[key] = value
	}
	return out
}

// mapFields applies the legacy full-key mapping. It accepts both the legacy
// JSON spellings and the alias-expanded invoice spellings, since the invoice
// generation predates the user_id/course_id names.
func mapFields(fields map[string]any) *domain.PurchaseIntent {
	intent := &domain.PurchaseIntent{
		UserID:         stringField(fields, "user_id", "user"),
		CourseID:       stringField(fields, "course_id", "course"),
		CouponCode:     stringField(fields, "coupon_code", "coupon"),
		OrganizationID: stringField(fields, "organization_id"),
		PlanID:         stringField(fields, "plan_id"),
		PlanSlug:       stringField(fields, "plan_slug"),
		Months:         intField(fields, "months"),
	}

	switch stringField(fields, "product_type") {
	case string(domain.ProductCourse):
		intent.ProductType = domain.ProductCourse
	case string(domain.ProductSubscription):
		intent.ProductType = domain.ProductSubscription
	}

	// The invoice generation marked subscriptions with a sub:<slug> token
	// instead of a product_type field.
	if sub := stringField(fields, "subscription"); sub != "" {
		intent.ProductType = domain.ProductSubscription
		if intent.PlanSlug == "" && intent.PlanID == "" {
			intent.PlanSlug = sub
		}
	}

	switch stringField(fields, "billing_period") {
	case string(domain.BillingMonthly):
		intent.BillingPeriod = domain.BillingMonthly
	case string(domain.BillingAnnual):
		intent.BillingPeriod = domain.BillingAnnual
	}

	if intent.Empty() {
		return nil
	}
	return intent
}

func stringField(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch cast := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(cast); trimmed != "" {
				return trimmed
			}
		case float64:
			if cast != 0 {
				return strconv.FormatInt(int64(cast), 10)
			}
		case json.Number:
			return cast.String()
		case int64:
			return strconv.FormatInt(cast, 10)
		case int:
			return strconv.Itoa(cast)
		}
	}
	return ""
}

func intField(fields map[string]any, key string) int {
	value, ok := fields[key]
	if !ok {
		return 0
	}
	switch cast := value.(type) {
	case float64:
		return int(cast)
	case int:
		return cast
	case int64:
		return int(cast)
	case json.Number:
		parsed, err := cast.Int64()
		if err == nil {
			return int(parsed)
		}
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(cast))
		if err == nil {
			return parsed
		}
	}
	return 0
}

// Package normalizer flattens provider webhook payloads into the engine's
// canonical event view. Different event types nest the order reference at
// different depths, so extraction is a fixed precedence chain with a
// recursive search as the last resort.
package normalizer

import (
	"context"
	"strings"

	"github.com/buildacademy/paycore/internal/webhook/domain"
	"go.uber.org/zap"
)

const (
	checkoutOrderPrefix = "CHECKOUT.ORDER."
	capturePrefix       = "PAYMENT.CAPTURE."
	checkoutOrdersPath  = "/v2/checkout/orders/"
)

// OrderFetcher recovers a full order from the provider API. Used only to
// backfill a missing invoice id.
type OrderFetcher interface {
	GetOrder(ctx context.Context, orderID string) (map[string]any, error)
}

type Normalizer struct {
	orders OrderFetcher
	log    *zap.Logger
}

func New(orders OrderFetcher, log *zap.Logger) *Normalizer {
	return &Normalizer{
		orders: orders,
		log:    log.Named("webhook.normalizer"),
	}
}

// Normalize extracts the canonical fields from a raw event. It cannot fail:
// fields that cannot be recovered stay empty and the engine classifies the
// event accordingly.
func (n *Normalizer) Normalize(ctx context.Context, raw *domain.RawEvent) *domain.NormalizedEvent {
	resource := raw.Resource
	eventType := strings.TrimSpace(raw.EventType)

	event := &domain.NormalizedEvent{
		EventID:   strings.TrimSpace(raw.ID),
		EventType: eventType,
		OrderID:   extractOrderID(eventType, resource),
		Status:    strings.ToUpper(stringAt(resource, "status")),
	}

	unit := firstPurchaseUnit(resource)

	event.InvoiceID = stringAt(unit, "invoice_id")
	if event.InvoiceID == "" {
		event.InvoiceID = stringAt(resource, "invoice_id")
	}
	event.CustomID = stringAt(unit, "custom_id")
	if event.CustomID == "" {
		event.CustomID = stringAt(resource, "custom_id")
	}

	event.Amount, event.Currency = extractAmount(resource, unit)
	event.CaptureID = extractCaptureID(eventType, resource, unit)

	// Capture events do not carry purchase units, so the invoice id has to be
	// recovered with one order lookup. Best-effort: a failed lookup leaves the
	// field absent instead of failing the event.
	if event.InvoiceID == "" && event.OrderID != "" && n.orders != nil {
		if invoiceID := n.fetchInvoiceID(ctx, event.OrderID); invoiceID != "" {
			event.InvoiceID = invoiceID
		}
	}

	return event
}

func (n *Normalizer) fetchInvoiceID(ctx context.Context, orderID string) string {
	order, err := n.orders.GetOrder(ctx, orderID)
	if err != nil {
		n.log.Warn("order lookup for invoice id failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return ""
	}
	return stringAt(firstPurchaseUnit(order), "invoice_id")
}

// extractOrderID applies the precedence chain: resource.id for checkout-order
// events, then supplementary data, then the "up" link, then a depth-first
// search for any order_id key.
func extractOrderID(eventType string, resource map[string]any) string {
	if strings.HasPrefix(eventType, checkoutOrderPrefix) {
		if id := stringAt(resource, "id"); id != "" {
			return id
		}
	}

	if related := mapAt(mapAt(resource, "supplementary_data"), "related_ids"); related != nil {
		if id := stringAt(related, "order_id"); id != "" {
			return id
		}
	}

	if id := orderIDFromLinks(resource); id != "" {
		return id
	}

	return searchOrderID(resource)
}

func orderIDFromLinks(resource map[string]any) string {
	links, ok := resource["links"].([]any)
	if !ok {
		return ""
	}
	for _, entry := range links {
		link, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if stringAt(link, "rel") != "up" {
			continue
		}
		href := stringAt(link, "href")
		idx := strings.Index(href, checkoutOrdersPath)
		if idx < 0 {
			continue
		}
		segment := href[idx+len(checkoutOrdersPath):]
		if cut := strings.IndexAny(segment, "/?"); cut >= 0 {
			segment = segment[:cut]
		}
		if segment != "" {
			return segment
		}
	}
	return ""
}

// searchOrderID walks the whole object graph for a key literally named
// order_id. Unbounded on purpose: providers have nested the reference at
// arbitrary depths across event types.
func searchOrderID(node any) string {
	switch typed := node.(type) {
	case map[string]any:
		if id, ok := typed["order_id"].(string); ok && id != "" {
			return id
		}
		for _, child := range typed {
			if id := searchOrderID(child); id != "" {
				return id
			}
		}
	case []any:
		for _, child := range typed {
			if id := searchOrderID(child); id != "" {
				return id
			}
		}
	}
	return ""
}

func extractAmount(resource, unit map[string]any) (string, string) {
	amount := mapAt(resource, "amount")
	if amount == nil {
		amount = mapAt(unit, "amount")
	}
	if amount == nil {
		return "", ""
	}
	return stringAt(amount, "value"), strings.ToUpper(stringAt(amount, "currency_code"))
}

func extractCaptureID(eventType string, resource, unit map[string]any) string {
	if strings.HasPrefix(eventType, capturePrefix) {
		if id := stringAt(resource, "id"); id != "" {
			return id
		}
	}
	captures, ok := mapAt(unit, "payments")["captures"].([]any)
	if !ok || len(captures) == 0 {
		return ""
	}
	capture, ok := captures[0].(map[string]any)
	if !ok {
		return ""
	}
	return stringAt(capture, "id")
}

func firstPurchaseUnit(resource map[string]any) map[string]any {
	units, ok := resource["purchase_units"].([]any)
	if !ok || len(units) == 0 {
		return nil
	}
	unit, ok := units[0].(map[string]any)
	if !ok {
		return nil
	}
	return unit
}

func stringAt(node map[string]any, key string) string {
	if node == nil {
		return ""
	}
	value, ok := node[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func mapAt(node map[string]any, key string) map[string]any {
	if node == nil {
		return nil
	}
	value, ok := node[key].(map[string]any)
	if !ok {
		return nil
	}
	return value
}

package normalizer

import (
	"context"
	"errors"
	"testing"

	"github.com/buildacademy/paycore/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOrderFetcher struct {
	orders map[string]map[string]any
	err    error
	calls  int
}

func (f *fakeOrderFetcher) GetOrder(ctx context.Context, orderID string) (map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	order, ok := f.orders[orderID]
	if !ok {
		return nil, errors.New("order not found")
	}
	return order, nil
}

func TestNormalizeCheckoutOrderApproved(t *testing.T) {
	n := New(nil, zap.NewNop())

	raw := &domain.RawEvent{
		ID:        "WH-1",
		EventType: "CHECKOUT.ORDER.APPROVED",
		Resource: map[string]any{
			"id":     "ORDER-1",
			"status": "approved",
			"purchase_units": []any{
				map[string]any{
					"custom_id":  "user1|courseA",
					"invoice_id": "u:user1;c:courseA",
					"amount": map[string]any{
						"value":         "49.99",
						"currency_code": "usd",
					},
					"payments": map[string]any{
						"captures": []any{
							map[string]any{"id": "CAP-7"},
						},
					},
				},
			},
		},
	}

	event := n.Normalize(context.Background(), raw)
	assert.Equal(t, "WH-1", event.EventID)
	assert.Equal(t, "ORDER-1", event.OrderID)
	assert.Equal(t, "user1|courseA", event.CustomID)
	assert.Equal(t, "u:user1;c:courseA", event.InvoiceID)
	assert.Equal(t, "49.99", event.Amount)
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, "APPROVED", event.Status)
	assert.Equal(t, "CAP-7", event.CaptureID)
	assert.True(t, event.Approved())
}

func TestNormalizeCaptureUsesSupplementaryData(t *testing.T) {
	fetcher := &fakeOrderFetcher{
		orders: map[string]map[string]any{
			"ORDER-2": {
				"purchase_units": []any{
					map[string]any{"invoice_id": "u:user2;c:courseB"},
				},
			},
		},
	}
	n := New(fetcher, zap.NewNop())

	raw := &domain.RawEvent{
		ID:        "WH-2",
		EventType: "PAYMENT.CAPTURE.COMPLETED",
		Resource: map[string]any{
			"id":        "CAP-9",
			"status":    "COMPLETED",
			"custom_id": "user2|courseB",
			"amount": map[string]any{
				"value":         "19.00",
				"currency_code": "USD",
			},
			"supplementary_data": map[string]any{
				"related_ids": map[string]any{"order_id": "ORDER-2"},
			},
		},
	}

	event := n.Normalize(context.Background(), raw)
	assert.Equal(t, "ORDER-2", event.OrderID)
	assert.Equal(t, "CAP-9", event.CaptureID)
	assert.Equal(t, "user2|courseB", event.CustomID)
	// Capture payloads carry no purchase units; the invoice id comes from one
	// order lookup.
	assert.Equal(t, "u:user2;c:courseB", event.InvoiceID)
	assert.Equal(t, 1, fetcher.calls)
}

func TestNormalizeOrderIDFromUpLink(t *testing.T) {
	n := New(nil, zap.NewNop())

	raw := &domain.RawEvent{
		EventType: "PAYMENT.CAPTURE.COMPLETED",
		Resource: map[string]any{
			"id": "CAP-3",
			"links": []any{
				map[string]any{"rel": "self", "href": "https://api.example.com/v2/payments/captures/CAP-3"},
				map[string]any{"rel": "up", "href": "https://api.example.com/v2/checkout/orders/ORDER-3?fields=all"},
			},
		},
	}

	event := n.Normalize(context.Background(), raw)
	assert.Equal(t, "ORDER-3", event.OrderID)
}

func TestNormalizeOrderIDDeepSearch(t *testing.T) {
	n := New(nil, zap.NewNop())

	raw := &domain.RawEvent{
		EventType: "SOME.OTHER.EVENT",
		Resource: map[string]any{
			"nested": map[string]any{
				"deeper": []any{
					map[string]any{"order_id": "ORDER-4"},
				},
			},
		},
	}

	event := n.Normalize(context.Background(), raw)
	assert.Equal(t, "ORDER-4", event.OrderID)
}

func TestNormalizeOrderLookupFailureIsAbsorbed(t *testing.T) {
	fetcher := &fakeOrderFetcher{err: errors.New("provider unavailable")}
	n := New(fetcher, zap.NewNop())

	raw := &domain.RawEvent{
		EventType: "PAYMENT.CAPTURE.COMPLETED",
		Resource: map[string]any{
			"id": "CAP-5",
			"supplementary_data": map[string]any{
				"related_ids": map[string]any{"order_id": "ORDER-5"},
			},
		},
	}

	event := n.Normalize(context.Background(), raw)
	require.NotNil(t, event)
	assert.Equal(t, "ORDER-5", event.OrderID)
	assert.Empty(t, event.InvoiceID)
	assert.Equal(t, 1, fetcher.calls)
}

func TestNormalizeWithoutFetcher(t *testing.T) {
	n := New(nil, zap.NewNop())

	raw := &domain.RawEvent{
		EventType: "PAYMENT.CAPTURE.COMPLETED",
		Resource: map[string]any{
			"id": "CAP-6",
			"supplementary_data": map[string]any{
				"related_ids": map[string]any{"order_id": "ORDER-6"},
			},
		},
	}

	event := n.Normalize(context.Background(), raw)
	assert.Equal(t, "ORDER-6", event.OrderID)
	assert.Empty(t, event.InvoiceID)
}

func TestNormalizeEmptyResource(t *testing.T) {
	n := New(nil, zap.NewNop())

	event := n.Normalize(context.Background(), &domain.RawEvent{EventType: "CHECKOUT.ORDER.APPROVED"})
	assert.Empty(t, event.OrderID)
	assert.Empty(t, event.CaptureID)
	assert.True(t, event.Approved())
}

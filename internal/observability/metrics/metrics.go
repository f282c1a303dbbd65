// Package metrics exposes the engine's OTel instruments.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/buildacademy/paycore/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the meter provider and the engine instruments.
var Module = fx.Module("observability.metrics",
	fx.Provide(NewProvider),
	fx.Provide(New),
)

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookEvents     metric.Int64Counter
	paymentsRecorded  metric.Int64Counter
	paymentDuplicates metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.MetricsEnabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.MetricsProtocol, cfg.MetricsEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down meter provider")
			return provider.Shutdown(ctx)
		},
	})

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.MetricsEndpoint),
		zap.String("protocol", cfg.MetricsProtocol),
	)

	return provider, nil
}

// New configures the engine instruments.
func New(cfg config.Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "paycore"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("webhook_events_total",
		metric.WithDescription("Webhook events processed, by terminal state"))
	if err != nil {
		return nil, err
	}
	paymentsRecorded, err := meter.Int64Counter("payments_recorded_total",
		metric.WithDescription("Payment rows inserted"))
	if err != nil {
		return nil, err
	}
	paymentDuplicates, err := meter.Int64Counter("payment_duplicates_total",
		metric.WithDescription("Duplicate payment deliveries absorbed by the store constraint"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:     webhookEvents,
		paymentsRecorded:  paymentsRecorded,
		paymentDuplicates: paymentDuplicates,
	}, nil
}

func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, state string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("state", state),
	))
}

func (m *Metrics) RecordPayment(ctx context.Context, provider, productType string) {
	if m == nil || m.paymentsRecorded == nil {
		return
	}
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("product_type", productType),
	))
}

func (m *Metrics) RecordPaymentDuplicate(ctx context.Context, provider string) {
	if m == nil || m.paymentDuplicates == nil {
		return
	}
	m.paymentDuplicates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch protocol {
	case "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported metrics protocol %q", protocol)
	}
}

package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes ledger instruments exported over OTLP.
type Metrics struct {
	billsGenerated   metric.Int64Counter
	paymentsRecorded metric.Int64Counter
	paymentAmount    metric.Float64Counter
	scopeFallbacks   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the ledger instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "cableledger"
	}
	meter := provider.Meter(name)

	billsGenerated, err := meter.Int64Counter("cableledger_bills_generated_total",
		metric.WithDescription("Bill generation outcomes per subscriber."))
	if err != nil {
		return nil, err
	}
	paymentsRecorded, err := meter.Int64Counter("cableledger_payments_recorded_total",
		metric.WithDescription("Payments recorded by mode."))
	if err != nil {
		return nil, err
	}
	paymentAmount, err := meter.Float64Counter("cableledger_payment_amount_total",
		metric.WithDescription("Sum of recorded payment amounts by mode."))
	if err != nil {
		return nil, err
	}
	scopeFallbacks, err := meter.Int64Counter("cableledger_scope_orphan_fallback_total",
		metric.WithDescription("Operator principals resolved without a parent tenant."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		billsGenerated:   billsGenerated,
		paymentsRecorded: paymentsRecorded,
		paymentAmount:    paymentAmount,
		scopeFallbacks:   scopeFallbacks,
	}, nil
}

// RecordGeneration adds per-outcome counts of one generation run.
func (m *Metrics) RecordGeneration(ctx context.Context, trigger string, created, skipped, failed int) {
	if m == nil {
		return
	}
	for outcome, count := range map[string]int{"created": created, "skipped": skipped, "failed": failed} {
		if count == 0 {
			continue
		}
		attrs := FilterAttributes(
			attribute.String("outcome", outcome),
			attribute.String("trigger", strings.TrimSpace(trigger)),
		)
		m.billsGenerated.Add(ctx, int64(count), metric.WithAttributes(attrs...))
	}
}

// RecordPayment counts a committed payment.
func (m *Metrics) RecordPayment(ctx context.Context, mode string, amount float64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_mode", strings.TrimSpace(mode)))
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.paymentAmount.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordScopeFallback counts an orphan operator resolution.
func (m *Metrics) RecordScopeFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.scopeFallbacks.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":      {},
	"trigger":      {},
	"payment_mode": {},
	"endpoint":     {},
	"status_code":  {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Scope and subscriber ids never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("scope_id", "123"),
		attribute.String("subscriber_id", "456"),
		attribute.String("payment_mode", "UPI"),
		attribute.String("outcome", "created"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("payment_mode"))
	assert.Contains(t, keys, attribute.Key("outcome"))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordGeneration(context.Background(), "api", 1, 2, 3)
	m.RecordPayment(context.Background(), "Cash", 10)
	m.RecordScopeFallback(context.Background())
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "cableledger"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordGeneration(context.Background(), "scheduler", 3, 1, 0)
	m.RecordPayment(context.Background(), "UPI", 300)
}

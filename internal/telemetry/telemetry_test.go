package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"partsmarket/internal/telemetry"
)

// newTestMetrics - счётчики на ручном reader'е для проверок в тестах
func newTestMetrics(t *testing.T) (*telemetry.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := telemetry.New(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func sum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != name {
				continue
			}
			s, ok := mt.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range s.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestAdd(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.Add(context.Background(), telemetry.OrphanOffers, 2, "order_id", "7")
	m.Add(context.Background(), telemetry.OrphanOffers, 1)
	m.Add(context.Background(), "unknown", 5)

	require.Equal(t, int64(3), sum(t, reader, telemetry.OrphanOffers))
	require.Equal(t, int64(0), sum(t, reader, telemetry.CRMSynced))
}

func TestNilMetrics(t *testing.T) {
	var m *telemetry.Metrics
	require.NotPanics(t, func() { m.Add(context.Background(), telemetry.MailIngested, 1) })
	require.NotNil(t, telemetry.Global())
}

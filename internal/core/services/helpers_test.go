package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/SscSPs/fiscal_journal/internal/core/domain"
	portsrepo "github.com/SscSPs/fiscal_journal/internal/core/ports/repositories"
	"github.com/SscSPs/fiscal_journal/internal/core/services"
)

// fixedClock returns a clock pinned to t.
func fixedClock(t time.Time) services.Clock {
	return func() time.Time { return t }
}

// newTestMetrics registers the fiscal counters on a provider backed by a manual reader.
func newTestMetrics(t *testing.T) (*services.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := services.NewMetrics(provider.Meter("fiscal-test"))
	require.NoError(t, err)
	return m, reader
}

// counterValue sums every data point of the named int64 counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

// tamperingReader rewrites or drops one entry as it is streamed, leaving the store intact.
type tamperingReader struct {
	portsrepo.JournalReader
	sequence int64
	tamper   func(*domain.JournalEntry)
	drop     bool
}

func (r *tamperingReader) StreamEntries(ctx context.Context, fn func(entry domain.JournalEntry) error) error {
	return r.JournalReader.StreamEntries(ctx, func(entry domain.JournalEntry) error {
		if entry.SequenceNumber == r.sequence {
			if r.drop {
				return nil
			}
			r.tamper(&entry)
		}
		return fn(entry)
	})
}

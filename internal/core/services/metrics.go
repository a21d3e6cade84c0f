package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/SscSPs/fiscal_journal"

// Metric names exported by the fiscal core.
const (
	MetricJournalAppends          = "fiscal.journal.appends"
	MetricIntegrityViolations     = "fiscal.integrity.violations"
	MetricClosureClampedAggregate = "fiscal.closure.clamped_aggregates"
	MetricClosureOrdersSkipped    = "fiscal.closure.orders_skipped"
)

// Metrics holds the counters shared by the fiscal services.
type Metrics struct {
	appends       metric.Int64Counter
	violations    metric.Int64Counter
	clamped       metric.Int64Counter
	ordersSkipped metric.Int64Counter
}

// NewMetrics registers the fiscal counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.appends, err = meter.Int64Counter(MetricJournalAppends,
		metric.WithDescription("Entries appended to the legal journal"),
		metric.WithUnit("{entry}")); err != nil {
		return nil, fmt.Errorf("failed to create %s counter: %w", MetricJournalAppends, err)
	}
	if m.violations, err = meter.Int64Counter(MetricIntegrityViolations,
		metric.WithDescription("Hash chain violations found by verification"),
		metric.WithUnit("{violation}")); err != nil {
		return nil, fmt.Errorf("failed to create %s counter: %w", MetricIntegrityViolations, err)
	}
	if m.clamped, err = meter.Int64Counter(MetricClosureClampedAggregate,
		metric.WithDescription("Negative closure aggregates reported as zero"),
		metric.WithUnit("{aggregate}")); err != nil {
		return nil, fmt.Errorf("failed to create %s counter: %w", MetricClosureClampedAggregate, err)
	}
	if m.ordersSkipped, err = meter.Int64Counter(MetricClosureOrdersSkipped,
		metric.WithDescription("Orders excluded from a closure because of malformed amounts"),
		metric.WithUnit("{order}")); err != nil {
		return nil, fmt.Errorf("failed to create %s counter: %w", MetricClosureOrdersSkipped, err)
	}
	return m, nil
}

// defaultMetrics uses the global meter provider, a no-op unless main installs one.
func defaultMetrics() *Metrics {
	m, err := NewMetrics(otel.Meter(instrumentationName))
	if err != nil {
		return nil
	}
	return m
}

func (m *Metrics) recordAppend(ctx context.Context, txType string) {
	if m == nil {
		return
	}
	m.appends.Add(ctx, 1, metric.WithAttributes(attribute.String("transaction_type", txType)))
}

func (m *Metrics) recordViolations(ctx context.Context, kind string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.violations.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) recordClamp(ctx context.Context, field, closureType string) {
	if m == nil {
		return
	}
	m.clamped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("field", field),
		attribute.String("closure_type", closureType),
	))
}

func (m *Metrics) recordSkippedOrder(ctx context.Context, closureType string) {
	if m == nil {
		return
	}
	m.ordersSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("closure_type", closureType)))
}

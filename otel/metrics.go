package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zackproser/portfolio-sub002/audit"
)

// AuditMetrics translates audit reports into OpenTelemetry metrics.
type AuditMetrics struct {
	runs      metric.Int64Counter
	results   metric.Int64Counter
	invalid   metric.Int64Gauge
	runLength metric.Float64Histogram
}

// NewAuditMetrics creates the audit instruments on meter.
func NewAuditMetrics(meter metric.Meter) (*AuditMetrics, error) {
	runs, err := meter.Int64Counter("factcheck.audit.runs",
		metric.WithDescription("Number of audit runs"),
	)
	if err != nil {
		return nil, err
	}

	results, err := meter.Int64Counter("factcheck.audit.results",
		metric.WithDescription("Number of manifests audited by outcome"),
	)
	if err != nil {
		return nil, err
	}

	invalid, err := meter.Int64Gauge("factcheck.audit.invalid",
		metric.WithDescription("Invalid manifests in the latest audit"),
	)
	if err != nil {
		return nil, err
	}

	runLength, err := meter.Float64Histogram("factcheck.audit.duration",
		metric.WithDescription("Duration of an audit run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &AuditMetrics{
		runs:      runs,
		results:   results,
		invalid:   invalid,
		runLength: runLength,
	}, nil
}

// Record adds one finished report.
func (m *AuditMetrics) Record(ctx context.Context, report *audit.Report) {
	if m == nil || report == nil {
		return
	}

	category := attribute.String("category", string(report.Category))
	counts := report.Counts()
	m.runs.Add(ctx, 1, metric.WithAttributes(category, attribute.Bool("ok", report.OK())))
	m.invalid.Record(ctx, int64(counts.Invalid()), metric.WithAttributes(category))
	m.runLength.Record(ctx, report.FinishedAt.Sub(report.StartedAt).Seconds(), metric.WithAttributes(category))

	if counts.Valid > 0 {
		m.results.Add(ctx, int64(counts.Valid), metric.WithAttributes(category, attribute.String("outcome", "valid")))
	}
	for kind, n := range counts.ByKind {
		m.results.Add(ctx, int64(n), metric.WithAttributes(category, attribute.String("outcome", string(kind))))
	}
}

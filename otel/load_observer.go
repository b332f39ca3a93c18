package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zackproser/portfolio-sub002/loader"
	"github.com/zackproser/portfolio-sub002/manifest"
)

// LoadObserver records manifest loads into OpenTelemetry.
type LoadObserver struct {
	tracer trace.Tracer

	loads     metric.Int64Counter
	uncovered metric.Int64Counter
	facts     metric.Int64Histogram
	latency   metric.Float64Histogram
}

// NewLoadObserver creates a load observer bound to the provided meter and
// tracer. A nil tracer disables spans.
func NewLoadObserver(meter metric.Meter, tracer trace.Tracer) (*LoadObserver, error) {
	loads, err := meter.Int64Counter(
		"factcheck.manifest.loads",
		metric.WithDescription("Number of manifest loads by outcome"),
	)
	if err != nil {
		return nil, err
	}
	uncovered, err := meter.Int64Counter(
		"factcheck.manifest.uncovered_facts",
		metric.WithDescription("Number of fact leaves rejected for missing provenance"),
	)
	if err != nil {
		return nil, err
	}
	facts, err := meter.Int64Histogram(
		"factcheck.manifest.facts",
		metric.WithDescription("Fact leaves per valid manifest"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"factcheck.manifest.load.duration",
		metric.WithDescription("Manifest load and validation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &LoadObserver{
		tracer:    tracer,
		loads:     loads,
		uncovered: uncovered,
		facts:     facts,
		latency:   latency,
	}, nil
}

// ObserveLoad records one load result.
func (o *LoadObserver) ObserveLoad(ctx context.Context, obs loader.Observation) {
	if o == nil {
		return
	}

	outcome := string(obs.Kind)
	if obs.Success() {
		outcome = "valid"
	}
	attrs := []attribute.KeyValue{
		attribute.String("category", string(obs.Category)),
		attribute.String("outcome", outcome),
		attribute.Bool("success", obs.Success()),
	}

	options := metric.WithAttributes(attrs...)
	o.loads.Add(ctx, 1, options)
	o.latency.Record(ctx, obs.Duration.Seconds(), options)
	if obs.Success() {
		o.facts.Record(ctx, int64(obs.Facts), metric.WithAttributes(attrs[0]))
	}
	var mpe *manifest.MissingProvenanceError
	if errors.As(obs.Err, &mpe) {
		o.uncovered.Add(ctx, int64(len(mpe.Missing)), metric.WithAttributes(attrs[0]))
	}

	if o.tracer == nil {
		return
	}
	end := time.Now()
	_, span := o.tracer.Start(ctx, "manifest.load",
		trace.WithAttributes(append(attrs, attribute.String("slug", obs.Slug))...),
		trace.WithTimestamp(end.Add(-obs.Duration)),
	)
	if obs.Success() {
		span.SetAttributes(attribute.Int("facts", obs.Facts))
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(obs.Err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End(trace.WithTimestamp(end))
}

var _ loader.Observer = (*LoadObserver)(nil)

// Package otel provides OpenTelemetry integration for manifest validation.
package otel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zackproser/portfolio-sub002/audit"
)

// TracingConfig configures span export.
type TracingConfig struct {
	// Endpoint is an OTLP/HTTP URL such as http://localhost:4318. Spans are
	// recorded but not exported when empty.
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	// Exporter overrides the OTLP exporter.
	Exporter sdktrace.SpanExporter
}

// NewTracerProvider builds an SDK tracer provider. Callers own Shutdown.
func NewTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "factcheck"
	}
	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	var err error
	exporter := cfg.Exporter
	if exporter == nil && strings.TrimSpace(cfg.Endpoint) != "" {
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter for %s: %w", cfg.Endpoint, err)
		}
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// TraceAudit runs fn inside an "audit.run" span. Loads performed with the
// span's context become its children, and each failed manifest is added as
// a span event.
func TraceAudit(ctx context.Context, tracer trace.Tracer, fn func(context.Context) (*audit.Report, error)) (*audit.Report, error) {
	if tracer == nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "audit.run")
	defer span.End()

	report, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	counts := report.Counts()
	span.SetAttributes(
		attribute.String("audit.run_id", report.RunID),
		attribute.String("audit.category", string(report.Category)),
		attribute.Int("audit.total", counts.Total),
		attribute.Int("audit.invalid", counts.Invalid()),
	)
	for _, res := range report.Failed() {
		span.AddEvent("manifest.invalid", trace.WithAttributes(
			attribute.String("slug", res.Slug),
			attribute.String("outcome", string(res.Kind)),
			attribute.String("error", res.Error),
		))
	}
	if !report.OK() {
		span.SetStatus(codes.Error, counts.Summary())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return report, nil
}

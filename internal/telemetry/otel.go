// Package telemetry provides OpenTelemetry instrumentation
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// Config holds telemetry configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	MetricsPort    int
}

// Provider manages OpenTelemetry providers
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Governance decision metrics
	decisionCounter  metric.Int64Counter
	decisionDuration metric.Float64Histogram
	denyCounter      metric.Int64Counter
	activeRequests   metric.Int64UpDownCounter
	breakerState     metric.Int64UpDownCounter
}

// NewProvider creates a new telemetry provider
func NewProvider(cfg Config) (*Provider, error) {
	ctx := context.Background()

	// Create resource with service info
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Setup trace exporter — use TLS by default, plaintext only when OTEL_INSECURE=true
	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
	}
	if strings.EqualFold(os.Getenv("OTEL_INSECURE"), "true") {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	} else {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	traceExporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Setup tracer provider
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Setup Prometheus exporter for metrics
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	p := &Provider{
		config:         cfg,
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
	}

	// Initialize metrics
	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return p, nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.decisionCounter, err = p.meter.Int64Counter(
		"governance_decisions_total",
		metric.WithDescription("Total number of governance decisions, by outcome and source"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return err
	}

	p.decisionDuration, err = p.meter.Float64Histogram(
		"governance_evaluation_duration_seconds",
		metric.WithDescription("Time spent evaluating a governance request end to end"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	p.denyCounter, err = p.meter.Int64Counter(
		"governance_denials_total",
		metric.WithDescription("Total denied governance decisions, by pipeline stage"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return err
	}

	p.activeRequests, err = p.meter.Int64UpDownCounter(
		"governance_active_requests",
		metric.WithDescription("Governance requests currently being evaluated"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	p.breakerState, err = p.meter.Int64UpDownCounter(
		"governance_breaker_open_tools",
		metric.WithDescription("Number of tools whose circuit breaker is currently open"),
		metric.WithUnit("{tool}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Tracer returns the tracer instance
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter instance
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// Shutdown gracefully shuts down telemetry providers.
// Both tracer and meter are shut down regardless of individual failures.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// DecisionMetrics records one governance decision's outcome for RecordDecision.
type DecisionMetrics struct {
	Tool           string
	Allow          bool
	DecisionSource string
	Duration       time.Duration
}

// RecordDecision records metrics for one completed governance decision.
func (p *Provider) RecordDecision(ctx context.Context, m DecisionMetrics) {
	attrs := []attribute.KeyValue{
		attribute.String("tool", m.Tool),
		attribute.Bool("allow", m.Allow),
		attribute.String("decision_source", m.DecisionSource),
	}

	p.decisionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.decisionDuration.Record(ctx, m.Duration.Seconds(), metric.WithAttributes(attrs...))

	if !m.Allow {
		p.denyCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", m.Tool),
			attribute.String("decision_source", m.DecisionSource),
		))
	}
}

// StartRequest marks the start of an in-flight governance evaluation.
func (p *Provider) StartRequest(ctx context.Context, tool string) {
	p.activeRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// EndRequest marks the end of an in-flight governance evaluation.
func (p *Provider) EndRequest(ctx context.Context, tool string) {
	p.activeRequests.Add(ctx, -1, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordBreakerOpen adjusts the open-breaker gauge by delta (+1 when a tool's
// breaker opens, -1 when it closes).
func (p *Provider) RecordBreakerOpen(ctx context.Context, tool string, delta int64) {
	p.breakerState.Add(ctx, delta, metric.WithAttributes(attribute.String("tool", tool)))
}

// StartSpan starts a new span
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, opts...)
}

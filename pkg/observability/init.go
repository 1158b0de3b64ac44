package observability

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	ExporterType   string // "stdout" or "none"
	PrettyPrint    bool
	Output         io.Writer // stdout exporter target, os.Stderr when nil
	BatchTimeout   time.Duration
}

// DefaultConfig returns the tracing configuration derived from the
// PARQUETRY_TRACING* environment variables. Tracing is off unless
// PARQUETRY_TRACING is set to stdout.
func DefaultConfig() TracingConfig {
	rate, err := strconv.ParseFloat(getEnv("PARQUETRY_TRACING_SAMPLE_RATE", "1"), 64)
	if err != nil {
		rate = 1
	}
	return TracingConfig{
		ServiceName:    "parquetry",
		ServiceVersion: "dev",
		Environment:    getEnv("ENVIRONMENT", "development"),
		SamplingRate:   rate,
		ExporterType:   getEnv("PARQUETRY_TRACING", "none"),
		BatchTimeout:   5 * time.Second,
	}
}

// InitTracing installs a global tracer provider and returns its shutdown
// function. With exporter "none" it installs nothing and the writer's spans
// go to the no-op provider.
func InitTracing(cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.ExporterType == "" || cfg.ExporterType == "none" {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.ExporterType != "stdout" {
		return nil, pqerrors.Newf(pqerrors.ErrorTypeConfig, "unsupported trace exporter %q", cfg.ExporterType)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := []stdouttrace.Option{stdouttrace.WithWriter(out)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeConfig, "failed to create stdout exporter")
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 5 * time.Second
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(batchTimeout)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName: имя tracer'а ядра маркетплейса.
const InstrumentationName = "github.com/vladislavdragonenkov/marketplace"

// Config содержит настройки OpenTelemetry.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint: адрес OTLP/HTTP, например "localhost:4318".
	OTLPEndpoint string
	// SampleRate от 0.0 до 1.0; 1.0 сэмплирует всё.
	SampleRate float64
	Enabled    bool
}

// DefaultConfig возвращает настройки для локальной разработки. Трейсинг выключен.
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4318",
		SampleRate:     1.0,
		Enabled:        false,
	}
}

// InitTracer настраивает глобальный TracerProvider с OTLP/HTTP экспортёром.
// Возвращённый shutdown нужно вызвать при остановке, чтобы выгрузить накопленные span'ы.
func InitTracer(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Tracer возвращает именованный tracer из глобального провайдера.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Start открывает span операции ядра с идентификатором сущности.
func Start(ctx context.Context, operation, entity, id string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("marketplace.operation", operation)}
	if id != "" {
		attrs = append(attrs, attribute.String("marketplace."+entity+"_id", id))
	}
	return Tracer(InstrumentationName).Start(ctx, operation, trace.WithAttributes(attrs...))
}

// End завершает span и помечает его ошибкой, если err != nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

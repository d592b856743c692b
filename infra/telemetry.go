package infra

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tnqbao/gau-property-media/config"
)

const instrumentationName = "github.com/tnqbao/gau-property-media"

type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	Metrics        *PipelineMetrics
}

// InitTelemetry registers OTLP trace and metric providers globally. Without an endpoint
// the global no-op providers stay in place.
func InitTelemetry(cfg *config.EnvConfig) *Telemetry {
	t := &Telemetry{}
	ctx := context.Background()

	if cfg.Grafana.OTLPEndpoint != "" {
		res, err := newResource(cfg)
		if err != nil {
			log.Printf("Warning: failed to build telemetry resource: %v", err)
		}

		traceExporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Grafana.OTLPEndpoint))
		if err != nil {
			log.Printf("Warning: failed to create OTLP trace exporter: %v", err)
		} else {
			t.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(traceExporter),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(t.tracerProvider)
		}

		metricExporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Grafana.OTLPEndpoint))
		if err != nil {
			log.Printf("Warning: failed to create OTLP metric exporter: %v", err)
		} else {
			t.meterProvider = sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
				sdkmetric.WithResource(res),
			)
			otel.SetMeterProvider(t.meterProvider)

			if err := runtime.Start(runtime.WithMeterProvider(t.meterProvider)); err != nil {
				log.Printf("Warning: failed to start runtime instrumentation: %v", err)
			}
		}
	}

	t.Metrics = NewPipelineMetrics(otel.GetMeterProvider().Meter(instrumentationName))
	return t
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}
	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func newResource(cfg *config.EnvConfig) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.Grafana.ServiceName),
			attribute.String("deployment.environment", cfg.Environment.Mode),
			attribute.String("service.namespace", cfg.Environment.Group),
		),
	)
}

// PipelineMetrics are the counters and histograms recorded by the image pipeline.
type PipelineMetrics struct {
	imagesStaged      metric.Int64Counter
	tasks             metric.Int64Counter
	batches           metric.Int64Counter
	transcodeDuration metric.Float64Histogram
}

func NewPipelineMetrics(meter metric.Meter) *PipelineMetrics {
	m := &PipelineMetrics{}
	var err error

	if m.imagesStaged, err = meter.Int64Counter("media_images_staged_total",
		metric.WithDescription("Images written to the transient store")); err != nil {
		m.imagesStaged = noop.Int64Counter{}
	}
	if m.tasks, err = meter.Int64Counter("media_tasks_total",
		metric.WithDescription("Pipeline tasks by type and result")); err != nil {
		m.tasks = noop.Int64Counter{}
	}
	if m.batches, err = meter.Int64Counter("media_batches_total",
		metric.WithDescription("Image batches reaching a terminal status")); err != nil {
		m.batches = noop.Int64Counter{}
	}
	if m.transcodeDuration, err = meter.Float64Histogram("media_transcode_duration_seconds",
		metric.WithDescription("Time spent transcoding one image"), metric.WithUnit("s")); err != nil {
		m.transcodeDuration = noop.Float64Histogram{}
	}

	return m
}

// NewNoopPipelineMetrics records nothing.
func NewNoopPipelineMetrics() *PipelineMetrics {
	return NewPipelineMetrics(noop.NewMeterProvider().Meter(instrumentationName))
}

func (m *PipelineMetrics) ImagesStaged(ctx context.Context, mode string, n int) {
	m.imagesStaged.Add(ctx, int64(n), metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *PipelineMetrics) TaskDone(ctx context.Context, task, result string) {
	m.tasks.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task), attribute.String("result", result)))
}

func (m *PipelineMetrics) BatchFinished(ctx context.Context, status string) {
	m.batches.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *PipelineMetrics) TranscodeObserved(ctx context.Context, role string, d time.Duration) {
	m.transcodeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("role", role)))
}

package proxy

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/echonote-ai/echonote/pkg/stt"
)

// Metrics records per-session analytics: one event per closed realtime
// session with its provider and duration, plus batch request counts.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	sessions        metric.Int64Counter
	sessionDuration metric.Float64Histogram
	batchRequests   metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("transcribe-proxy")

	sessions, err := meter.Int64Counter("stt_sessions_total",
		metric.WithDescription("Realtime STT sessions completed"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("stt_session_duration_seconds",
		metric.WithDescription("Realtime STT session duration"))
	if err != nil {
		return nil, err
	}
	batch, err := meter.Int64Counter("stt_batch_requests_total",
		metric.WithDescription("Batch transcription requests"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		registry:        registry,
		provider:        provider,
		sessions:        sessions,
		sessionDuration: duration,
		batchRequests:   batch,
	}, nil
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordSession is the SttEvent emitted when a realtime session closes.
func (m *Metrics) RecordSession(ctx context.Context, provider stt.Provider, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("provider", string(provider)))
	m.sessions.Add(ctx, 1, attrs)
	m.sessionDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) RecordBatch(ctx context.Context, provider stt.Provider, ok bool) {
	m.batchRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.Bool("success", ok),
	))
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

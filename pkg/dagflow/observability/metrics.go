package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used for all dagflow instruments.
const MeterName = "dagflow"

// MetricsRecorder records dagflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node reaching a terminal state.
	RecordNodeExecution(ctx context.Context, node, state string, duration time.Duration, err error)

	// RecordWave records the number of nodes dispatched in one wave.
	RecordWave(ctx context.Context, size int)

	// RecordGraphRun records a finished run.
	RecordGraphRun(ctx context.Context, mode string, success bool, duration time.Duration)

	// RecordHistory records the size of a persisted run record.
	RecordHistory(ctx context.Context, sizeBytes int64)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeFailures   metric.Int64Counter
	waveSize       metric.Int64Histogram
	runCount       metric.Int64Counter
	runLatency     metric.Float64Histogram
	historySize    metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(MeterName)
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("dagflow.node.executions",
		metric.WithDescription("Nodes that reached a terminal state"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("dagflow.node.latency_ms",
		metric.WithDescription("Time from START to terminal state"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeFailures, err = meter.Int64Counter("dagflow.node.failures",
		metric.WithDescription("Nodes that finished FAILED, TIMEOUT or INEFFECTIVE"),
	); err != nil {
		return nil, err
	}
	if m.waveSize, err = meter.Int64Histogram("dagflow.wave.size",
		metric.WithDescription("Nodes dispatched per wave"),
	); err != nil {
		return nil, err
	}
	if m.runCount, err = meter.Int64Counter("dagflow.run.count",
		metric.WithDescription("Scheduled runs"),
	); err != nil {
		return nil, err
	}
	if m.runLatency, err = meter.Float64Histogram("dagflow.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.historySize, err = meter.Int64Histogram("dagflow.history.size_bytes",
		metric.WithDescription("Persisted run record size"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. Set the provider before the first call:
//
//	otel.SetMeterProvider(provider)
//
// If instrument creation fails a no-op recorder is returned.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, node, state string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("node", node),
		attribute.String("state", state),
	)
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.nodeFailures.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordWave(ctx context.Context, size int) {
	m.waveSize.Record(ctx, int64(size))
}

func (m *otelMetrics) RecordGraphRun(ctx context.Context, mode string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	)
	m.runCount.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (m *otelMetrics) RecordHistory(ctx context.Context, sizeBytes int64) {
	m.historySize.Record(ctx, sizeBytes)
}

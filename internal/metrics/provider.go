// Package metrics wires OpenTelemetry metrics with a Prometheus exporter
// bridge, the way MrWong99-glyphoxa's internal/observe/provider.go does,
// and exposes the counters/histograms the pipeline components publish:
// AsrStreamAdapter's dropped-frame counter (§4.1) and TranslationQueue's
// {active, queued, completed, errors, avg_processing_ms} (§4.2).
package metrics

import (
	"context"
	"errors"

	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider holds the OTel meter provider and the instruments the
// pipeline publishes to it. A nil *Provider is safe to use: every
// recording method becomes a no-op, so components can be constructed
// without metrics in tests.
type Provider struct {
	mp *sdkmetric.MeterProvider

	DroppedFrames    metric.Int64Counter
	KeepAlivesSent   metric.Int64Counter
	QueueActive      metric.Int64UpDownCounter
	QueueQueued      metric.Int64UpDownCounter
	QueueCompleted   metric.Int64Counter
	QueueErrors      metric.Int64Counter
	JobProcessingMs  metric.Float64Histogram
}

// NewProvider initializes the OTel SDK with a Prometheus exporter so
// metrics can be scraped via /metrics, and registers the pipeline's
// instruments on it. Returns a shutdown func to flush/close on exit.
func NewProvider(serviceName string) (*Provider, func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = "lecturecast"
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExp))
	meter := mp.Meter(serviceName)

	p := &Provider{mp: mp}

	if p.DroppedFrames, err = meter.Int64Counter(
		"asr_dropped_frames_total",
		metric.WithDescription("PCM frames dropped because the ASR transport buffer was saturated"),
	); err != nil {
		return nil, nil, err
	}
	if p.KeepAlivesSent, err = meter.Int64Counter(
		"asr_keepalives_total",
		metric.WithDescription("keep-alive frames sent during audio silence"),
	); err != nil {
		return nil, nil, err
	}
	if p.QueueActive, err = meter.Int64UpDownCounter(
		"translation_queue_active",
		metric.WithDescription("translation jobs currently dispatched to a handler"),
	); err != nil {
		return nil, nil, err
	}
	if p.QueueQueued, err = meter.Int64UpDownCounter(
		"translation_queue_queued",
		metric.WithDescription("translation jobs waiting for a concurrency slot"),
	); err != nil {
		return nil, nil, err
	}
	if p.QueueCompleted, err = meter.Int64Counter(
		"translation_queue_completed_total",
		metric.WithDescription("translation jobs that completed successfully"),
	); err != nil {
		return nil, nil, err
	}
	if p.QueueErrors, err = meter.Int64Counter(
		"translation_queue_errors_total",
		metric.WithDescription("translation jobs that errored or timed out"),
	); err != nil {
		return nil, nil, err
	}
	if p.JobProcessingMs, err = meter.Float64Histogram(
		"translation_job_processing_ms",
		metric.WithDescription("wall-clock time from dispatch to completion of a translation job"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		var errs []error
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	return p, shutdown, nil
}

// The Record* helpers nil-check the receiver so components can hold a
// possibly-nil *Provider (e.g. when constructed without metrics in
// tests) without branching at every call site.

func (p *Provider) RecordDroppedFrame(ctx context.Context) {
	if p == nil {
		return
	}
	p.DroppedFrames.Add(ctx, 1)
}

func (p *Provider) RecordKeepAlive(ctx context.Context) {
	if p == nil {
		return
	}
	p.KeepAlivesSent.Add(ctx, 1)
}

func (p *Provider) RecordQueueActiveDelta(ctx context.Context, delta int64) {
	if p == nil {
		return
	}
	p.QueueActive.Add(ctx, delta)
}

func (p *Provider) RecordQueueQueuedDelta(ctx context.Context, delta int64) {
	if p == nil {
		return
	}
	p.QueueQueued.Add(ctx, delta)
}

func (p *Provider) RecordQueueCompleted(ctx context.Context, processingMs float64) {
	if p == nil {
		return
	}
	p.QueueCompleted.Add(ctx, 1)
	p.JobProcessingMs.Record(ctx, processingMs)
}

func (p *Provider) RecordQueueError(ctx context.Context) {
	if p == nil {
		return
	}
	p.QueueErrors.Add(ctx, 1)
}

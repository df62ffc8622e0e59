package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type metrics struct {
	tracer   trace.Tracer
	started  metric.Int64Counter
	finished metric.Int64Counter
	duration metric.Float64Histogram
	reg      metric.Registration
}

func newMetrics(meter metric.Meter, tracer trace.Tracer, current func() Snapshot) (*metrics, error) {
	started, err := meter.Int64Counter("podcast.sessions.started", metric.WithDescription("Generation sessions opened"))
	if err != nil {
		return nil, err
	}
	finished, err := meter.Int64Counter("podcast.sessions.finished", metric.WithDescription("Generation sessions ended, by outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("podcast.session.duration", metric.WithUnit("s"), metric.WithDescription("Time from open to end of a session"))
	if err != nil {
		return nil, err
	}
	progress, err := meter.Float64ObservableGauge("podcast.session.progress", metric.WithDescription("Progress of the current session"))
	if err != nil {
		return nil, err
	}
	reg, err := meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		snap := current()
		if snap.State.Open() {
			obs.ObserveFloat64(progress, snap.Progress, metric.WithAttributes(attribute.String("kind", string(snap.Kind))))
		}
		return nil
	}, progress)
	if err != nil {
		return nil, err
	}
	return &metrics{
		tracer:   tracer,
		started:  started,
		finished: finished,
		duration: duration,
		reg:      reg,
	}, nil
}

func (m *metrics) begin(ctx context.Context, r *run) {
	attrs := runAttrs(r)
	r.ctx, r.span = m.tracer.Start(ctx, "podcast.session", trace.WithAttributes(append(attrs, attribute.String("session.id", r.id))...))
	m.started.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) end(r *run, outcome string, elapsed time.Duration, err error) {
	attrs := append(runAttrs(r), attribute.String("outcome", outcome))
	m.finished.Add(r.ctx, 1, metric.WithAttributes(attrs...))
	m.duration.Record(r.ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	if r.span == nil {
		return
	}
	r.span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	}
	r.span.End()
}

func (m *metrics) close() {
	if m.reg != nil {
		_ = m.reg.Unregister()
	}
}

func runAttrs(r *run) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("kind", string(r.req.Kind())),
		attribute.String("engine", string(r.req.Engine())),
	}
}

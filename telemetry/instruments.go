package telemetry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments records session activity
type Instruments struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	rejected metric.Int64Counter
	bytes    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstruments creates the instruments from meter, or the global meter provider if meter is nil
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(ScopeName)
	}

	var (
		i   Instruments
		err error
	)

	if i.started, err = meter.Int64Counter("goscan_sessions_started_total",
		metric.WithDescription("Sessions started, by kind")); err != nil {
		return nil, errors.Wrap(err, "sessions started counter")
	}

	if i.finished, err = meter.Int64Counter("goscan_sessions_finished_total",
		metric.WithDescription("Sessions finished, by kind and outcome")); err != nil {
		return nil, errors.Wrap(err, "sessions finished counter")
	}

	if i.rejected, err = meter.Int64Counter("goscan_requests_rejected_total",
		metric.WithDescription("Requests rejected before a session started, by reason")); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}

	if i.bytes, err = meter.Int64Counter("goscan_bytes_processed_total",
		metric.WithDescription("Bytes read from sources"),
		metric.WithUnit("By")); err != nil {
		return nil, errors.Wrap(err, "bytes counter")
	}

	if i.duration, err = meter.Float64Histogram("goscan_session_duration_seconds",
		metric.WithDescription("Time from session start to its terminal state"),
		metric.WithUnit("s")); err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}

	return &i, nil
}

func (i *Instruments) SessionStarted(ctx context.Context, kind string) {
	i.started.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (i *Instruments) SessionFinished(ctx context.Context, kind, outcome string, bytes int64, elapsed time.Duration) {
	i.finished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
	i.bytes.Add(ctx, bytes, metric.WithAttributes(attribute.String("kind", kind)))
	i.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (i *Instruments) Rejected(ctx context.Context, reason string) {
	i.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Package notify delivers job lifecycle events to NATS subscribers and job callback URLs.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/metrics"
)

// Notifier delivers a lifecycle event. Delivery failures never affect the job.
type Notifier interface {
	Notify(ctx context.Context, ev *domain.LifecycleEvent) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, *domain.LifecycleEvent) error { return nil }

// Sink is a named notifier, the name labels failure metrics.
type Sink struct {
	Name     string
	Notifier Notifier
}

// Fanout delivers each event to every sink and logs failures.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, ev *domain.LifecycleEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notifier.Notify(ctx, ev); err != nil {
			metrics.NotificationFailures.WithLabelValues(s.Name).Inc()
			f.logger.Warn("Lifecycle notification failed",
				zap.String("job_id", ev.JobID.String()),
				zap.String("sink", s.Name),
				zap.String("status", string(ev.Status)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

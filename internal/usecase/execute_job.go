package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/metrics"
	"github.com/Harsh-BH/reel/internal/notify"
	"github.com/Harsh-BH/reel/internal/pipeline"
	"github.com/Harsh-BH/reel/internal/repository"
)

// ExecuteJobUsecase drives a claimed work item through its pipeline to a terminal state.
//
// The job store is the only synchronization point with the cancel path: every write is
// conditional on the status this worker last wrote, so a cancellation that lands between
// stages makes the next write stale and the worker yields.
type ExecuteJobUsecase struct {
	repo      repository.JobRepository
	pipelines *pipeline.Registry
	notifier  notify.Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewExecuteJobUsecase creates a new ExecuteJobUsecase.
func NewExecuteJobUsecase(
	repo repository.JobRepository,
	pipelines *pipeline.Registry,
	notifier notify.Notifier,
	logger *zap.Logger,
) *ExecuteJobUsecase {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &ExecuteJobUsecase{
		repo:      repo,
		pipelines: pipelines,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Execute processes a single work item. A nil error means the item is settled: the job
// completed, or it was already terminal (typically cancelled) and nothing was done.
// Any other error is meant for the work channel's retry/dead-letter policy.
func (uc *ExecuteJobUsecase) Execute(ctx context.Context, item *domain.WorkItem) error {
	log := uc.logger.With(zap.String("job_id", item.JobID.String()))

	// The item's snapshot is only trusted for immutable metadata; status comes from the store.
	job, err := uc.repo.GetByID(ctx, item.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Warn("Work item references a missing job")
			return fmt.Errorf("work item outlived its job: %w", err)
		}
		return err
	}

	if job.Status.IsTerminal() {
		log.Info("Job already terminal, skipping", zap.String("status", string(job.Status)))
		return nil
	}

	from := job.Status
	if err := job.Claim(uc.now()); err != nil {
		return err
	}
	if err := uc.repo.Update(ctx, job, from); err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			return uc.yield(ctx, item, log)
		}
		log.Error("Failed to claim job", zap.Error(err))
		return err
	}
	if from == domain.StatusProcessing {
		log.Warn("Reclaimed job left processing by a previous worker", zap.Int("progress", job.Progress))
	}

	started := time.Now()
	p := uc.pipelines.For(job.FileType)
	if err := p.Validate(); err != nil {
		return uc.fail(ctx, job, err, log)
	}

	var summary pipeline.Summary
	for _, stage := range p.Stages {
		stageStart := time.Now()
		out, err := stage.Run(ctx, item)
		metrics.StageDuration.WithLabelValues(stage.Name()).Observe(time.Since(stageStart).Seconds())
		if err != nil {
			log.Warn("Stage failed", zap.String("stage", stage.Name()), zap.Error(err))
			return uc.fail(ctx, job, err, log)
		}
		summary.Add(out)

		if err := job.Advance(out.Progress, uc.now()); err != nil {
			return err
		}
		if err := uc.repo.Update(ctx, job, domain.StatusProcessing); err != nil {
			if errors.Is(err, domain.ErrStaleState) {
				return uc.yield(ctx, item, log)
			}
			log.Error("Failed to persist progress", zap.Error(err))
			return err
		}
		log.Debug("Stage finished", zap.String("stage", stage.Name()), zap.Int("progress", job.Progress))
	}

	now := uc.now()
	if err := job.Complete(now); err != nil {
		return err
	}
	format := p.OutputFormat
	if format == "" {
		format = pipeline.DefaultOutputFormat
	}
	result := &domain.JobResult{
		JobID:        job.ID,
		ProcessedAt:  &now,
		OutputFormat: &format,
		Duration:     summary.DurationSeconds,
		Metadata:     summary.Metadata,
	}
	if err := uc.repo.Complete(ctx, job, result); err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			return uc.yield(ctx, item, log)
		}
		log.Error("Failed to persist completion", zap.Error(err))
		return err
	}

	metrics.ExecutionsTotal.WithLabelValues(string(job.FileType), string(domain.StatusCompleted)).Inc()
	metrics.ExecutionDuration.WithLabelValues(string(job.FileType)).Observe(time.Since(started).Seconds())
	log.Info("Job completed", zap.Duration("elapsed", time.Since(started)))

	_ = uc.notifier.Notify(ctx, domain.NewLifecycleEvent(job, nil))
	return nil
}

// fail persists FAILED and returns the cause wrapped in domain.ErrProcessingFailure.
func (uc *ExecuteJobUsecase) fail(ctx context.Context, job *domain.Job, cause error, log *zap.Logger) error {
	if err := job.Fail(uc.now()); err != nil {
		return err
	}
	if err := uc.repo.Update(ctx, job, domain.StatusProcessing); err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			return uc.yield(ctx, domain.NewWorkItem(job), log)
		}
		log.Error("Failed to persist failure", zap.Error(err), zap.NamedError("cause", cause))
		return err
	}

	metrics.ExecutionsTotal.WithLabelValues(string(job.FileType), string(domain.StatusFailed)).Inc()
	log.Warn("Job failed", zap.Error(cause), zap.Int("progress", job.Progress))
	_ = uc.notifier.Notify(ctx, domain.NewLifecycleEvent(job, cause))

	if errors.Is(cause, domain.ErrProcessingFailure) {
		return cause
	}
	return fmt.Errorf("%w: %w", domain.ErrProcessingFailure, cause)
}

// yield re-reads a job whose conditional write missed. If someone else moved it to a
// terminal state (a cancel, in practice) the item is settled; otherwise the miss is returned
// so the delivery is retried.
func (uc *ExecuteJobUsecase) yield(ctx context.Context, item *domain.WorkItem, log *zap.Logger) error {
	current, err := uc.repo.GetByID(ctx, item.JobID)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		metrics.ExecutionsTotal.WithLabelValues(string(current.FileType), string(current.Status)).Inc()
		log.Info("Job changed concurrently, yielding",
			zap.String("status", string(current.Status)),
			zap.Int("progress", current.Progress),
		)
		return nil
	}
	return fmt.Errorf("%w: job is %s", domain.ErrStaleState, current.Status)
}

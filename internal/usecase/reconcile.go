package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/metrics"
	"github.com/Harsh-BH/reel/internal/publisher"
	"github.com/Harsh-BH/reel/internal/repository"
)

const defaultReconcileBatch = 100

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	Republished int
	Stalled     int
}

// ReconcileUsecase repairs orphaned pending jobs and reports stalled processing ones.
//
// A pending job whose publish failed has no work item; re-publishing it is safe because
// publishing is idempotent by job id. A processing job whose worker died keeps its lock and
// is only reported: it is reclaimed when the channel redelivers its item.
type ReconcileUsecase struct {
	repo        repository.JobRepository
	publisher   publisher.Publisher
	orphanAfter time.Duration
	stallAfter  time.Duration
	batch       int
	logger      *zap.Logger
	now         func() time.Time
}

func NewReconcileUsecase(
	repo repository.JobRepository,
	pub publisher.Publisher,
	orphanAfter, stallAfter time.Duration,
	logger *zap.Logger,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		repo:        repo,
		publisher:   pub,
		orphanAfter: orphanAfter,
		stallAfter:  stallAfter,
		batch:       defaultReconcileBatch,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs one sweep. Store errors abort it; per-job publish errors are logged and skipped.
func (uc *ReconcileUsecase) Execute(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	now := uc.now()

	orphans, err := uc.repo.ListStale(ctx, domain.StatusPending, now.Add(-uc.orphanAfter), uc.batch)
	if err != nil {
		return report, err
	}
	for _, job := range orphans {
		if err := uc.publisher.Publish(ctx, domain.NewWorkItem(job)); err != nil {
			uc.logger.Warn("Failed to re-publish pending job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			continue
		}
		report.Republished++
	}
	metrics.OrphansRepublished.Add(float64(report.Republished))

	stalled, err := uc.repo.ListStale(ctx, domain.StatusProcessing, now.Add(-uc.stallAfter), uc.batch)
	if err != nil {
		return report, err
	}
	for _, job := range stalled {
		fields := []zap.Field{
			zap.String("job_id", job.ID.String()),
			zap.Int("progress", job.Progress),
		}
		if job.LockedAt != nil {
			fields = append(fields, zap.Duration("locked_for", now.Sub(*job.LockedAt)))
		}
		uc.logger.Warn("Job stalled in processing", fields...)
	}
	report.Stalled = len(stalled)
	metrics.StalledJobs.Set(float64(report.Stalled))

	if report.Republished > 0 || report.Stalled > 0 {
		uc.logger.Info("Reconciliation sweep finished",
			zap.Int("republished", report.Republished),
			zap.Int("stalled", report.Stalled),
		)
	}
	return report, nil
}

// Run sweeps every interval until ctx is done.
func (uc *ReconcileUsecase) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	uc.logger.Info("Reconciliation sweep started",
		zap.Duration("interval", interval),
		zap.Duration("orphan_after", uc.orphanAfter),
		zap.Duration("stall_after", uc.stallAfter),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := uc.Execute(ctx); err != nil && ctx.Err() == nil {
				uc.logger.Error("Reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

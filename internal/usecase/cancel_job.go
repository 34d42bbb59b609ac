package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/metrics"
	"github.com/Harsh-BH/reel/internal/notify"
	"github.com/Harsh-BH/reel/internal/publisher"
	"github.com/Harsh-BH/reel/internal/repository"
)

// maxCancelAttempts bounds how often a cancel re-reads a job whose status moved under it.
// Every retry follows a real transition, and a job has at most three of them.
const maxCancelAttempts = 4

// CancelJobUsecase cancels pending or processing jobs.
type CancelJobUsecase struct {
	repo      repository.JobRepository
	publisher publisher.Publisher
	notifier  notify.Notifier
	logger    *zap.Logger
}

func NewCancelJobUsecase(repo repository.JobRepository, pub publisher.Publisher, notifier notify.Notifier, logger *zap.Logger) *CancelJobUsecase {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &CancelJobUsecase{
		repo:      repo,
		publisher: pub,
		notifier:  notifier,
		logger:    logger,
	}
}

// Execute withdraws the job's work item, then persists CANCELLED with progress frozen.
//
// A worker that already claimed the item keeps running its current stage and yields when it
// next writes. The write is conditional on the status read here; if a worker moved the job in
// between, the job is re-read and the cancel re-checked against the new status.
func (uc *CancelJobUsecase) Execute(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	log := uc.logger.With(zap.String("job_id", id.String()))
	removalTried := false

	for attempt := 1; attempt <= maxCancelAttempts; attempt++ {
		job, err := uc.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				return nil, domain.ErrJobNotFound
			}
			return nil, err
		}

		if !job.CanCancel() {
			return nil, fmt.Errorf("%w: job is %s", domain.ErrJobConflict, job.Status)
		}

		if !removalTried {
			removed, err := uc.publisher.Remove(ctx, id)
			if err != nil {
				log.Error("Failed to remove work item", zap.Error(err))
				return nil, channelErr("remove work item", err)
			}
			removalTried = true
			log.Debug("Work item removal", zap.Bool("removed", removed))
		}

		from := job.Status
		if err := job.Cancel(time.Now().UTC()); err != nil {
			return nil, err
		}

		err = uc.repo.Update(ctx, job, from)
		switch {
		case err == nil:
			metrics.JobsCancelled.WithLabelValues(string(from)).Inc()
			log.Info("Job cancelled",
				zap.String("from_status", string(from)),
				zap.Int("progress", job.Progress),
			)
			_ = uc.notifier.Notify(context.WithoutCancel(ctx), domain.NewLifecycleEvent(job, nil))
			return job, nil
		case errors.Is(err, domain.ErrStaleState):
			log.Debug("Job changed during cancel, re-reading", zap.Int("attempt", attempt), zap.Error(err))
			continue
		case errors.Is(err, domain.ErrJobNotFound):
			return nil, domain.ErrJobNotFound
		default:
			log.Error("Failed to persist cancellation", zap.Error(err))
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: job status kept changing during cancel", domain.ErrJobConflict)
}

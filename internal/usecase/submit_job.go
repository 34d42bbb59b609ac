package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/metrics"
	"github.com/Harsh-BH/reel/internal/publisher"
	"github.com/Harsh-BH/reel/internal/repository"
)

// SubmitJobUsecase persists a new job and hands it to the work channel.
type SubmitJobUsecase struct {
	repo      repository.JobRepository
	publisher publisher.Publisher
	logger    *zap.Logger
}

// NewSubmitJobUsecase creates a new SubmitJobUsecase.
func NewSubmitJobUsecase(repo repository.JobRepository, pub publisher.Publisher, logger *zap.Logger) *SubmitJobUsecase {
	return &SubmitJobUsecase{
		repo:      repo,
		publisher: pub,
		logger:    logger,
	}
}

// Execute creates a PENDING job, persists it, then publishes its work item.
//
// The job is persisted before it is published. When publishing fails the job stays PENDING
// without a work item and the error wraps domain.ErrChannelUnavailable; the stored record is
// what the reconciliation sweep later re-publishes from, so it is not rolled back.
func (uc *SubmitJobUsecase) Execute(ctx context.Context, req *domain.SubmitRequest) (*domain.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Generate UUIDv7 (time-ordered)
	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          jobID,
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		FileType:    req.FileType,
		CallbackURL: req.CallbackURL,
		Status:      domain.StatusPending,
		Progress:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, job); err != nil {
		uc.logger.Error("Failed to create job in database", zap.Error(err), zap.String("job_id", jobID.String()))
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := uc.publisher.Publish(ctx, domain.NewWorkItem(job)); err != nil {
		uc.logger.Error("Failed to publish work item, job left pending for reconciliation",
			zap.Error(err),
			zap.String("job_id", jobID.String()),
		)
		return nil, channelErr("publish work item", err)
	}

	metrics.JobsSubmitted.WithLabelValues(string(job.FileType)).Inc()
	uc.logger.Info("Job submitted successfully",
		zap.String("job_id", jobID.String()),
		zap.String("file_type", string(job.FileType)),
		zap.Int64("file_size", job.FileSize),
	)

	return job, nil
}

package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/repository"
)

// ListJobsUsecase serves paginated, filtered job listings.
type ListJobsUsecase struct {
	repo   repository.JobRepository
	logger *zap.Logger
}

func NewListJobsUsecase(repo repository.JobRepository, logger *zap.Logger) *ListJobsUsecase {
	return &ListJobsUsecase{repo: repo, logger: logger}
}

// Execute returns one page, newest first. Page and limit are defaulted and the limit is
// capped at domain.MaxLimit.
func (uc *ListJobsUsecase) Execute(ctx context.Context, filter domain.ListFilter) (*domain.ListResult, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.ErrInvalidListFilter
	}
	if filter.FileType != "" && !filter.FileType.IsValid() {
		return nil, domain.ErrInvalidListFilter
	}
	filter = filter.Normalize()

	jobs, total, err := uc.repo.List(ctx, filter)
	if err != nil {
		uc.logger.Error("Failed to list jobs", zap.Error(err))
		return nil, err
	}
	return domain.NewListResult(jobs, total, filter), nil
}

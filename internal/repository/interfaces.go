package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/reel/internal/domain"
)

// JobRepository defines the interface for job persistence operations.
// Implementations must be safe for concurrent use.
//
// State writes are conditional on the status the caller last read: if the stored status
// differs, the write is rejected with domain.ErrStaleState and nothing changes.
type JobRepository interface {
	// Create inserts a new job and fills in its timestamps.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its UUID with its result attached when present.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Update persists status, progress and lockedAt if the stored status still equals expected.
	Update(ctx context.Context, job *domain.Job, expected domain.JobStatus) error

	// Complete persists a COMPLETED job and inserts its result in one transaction,
	// conditional on the stored status still being PROCESSING.
	Complete(ctx context.Context, job *domain.Job, result *domain.JobResult) error

	// List returns one page of jobs ordered by createdAt descending, and the total match count.
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.Job, int, error)

	// ListStale returns up to limit jobs in the given status whose reference time
	// (lockedAt for PROCESSING, updatedAt otherwise) is older than before.
	ListStale(ctx context.Context, status domain.JobStatus, before time.Time, limit int) ([]*domain.Job, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error
}

// PendingIndex tracks which work items are still waiting in the work channel, keyed by job id.
type PendingIndex interface {
	// Mark records the key. Returns false if it was already present.
	Mark(ctx context.Context, jobID uuid.UUID) (bool, error)

	// Remove deletes the key. Returns false if it was not present.
	Remove(ctx context.Context, jobID uuid.UUID) (bool, error)

	// Ping checks index connectivity.
	Ping(ctx context.Context) error
}

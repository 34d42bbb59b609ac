package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/repository"
)

// Ensure MockJobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*MockJobRepository)(nil)

// MockJobRepository is an in-memory job store for testing. It honours the same conditional
// write semantics as the PostgreSQL repository and hands out copies, never shared pointers.
type MockJobRepository struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]*domain.Job
	results map[uuid.UUID]*domain.JobResult

	// Hook functions for injecting errors. A hook returning a nil error falls through
	// to the in-memory behaviour.
	CreateFunc   func(ctx context.Context, job *domain.Job) error
	GetByIDFunc  func(ctx context.Context, id uuid.UUID) error
	UpdateFunc   func(ctx context.Context, job *domain.Job, expected domain.JobStatus) error
	CompleteFunc func(ctx context.Context, job *domain.Job, result *domain.JobResult) error
	PingFunc     func(ctx context.Context) error

	// History records every persisted status per job, in write order.
	History map[uuid.UUID][]domain.JobStatus
	// ProgressLog records every persisted progress value per job, in write order.
	ProgressLog map[uuid.UUID][]int
}

// NewMockJobRepository creates a new mock repository.
func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{
		jobs:        make(map[uuid.UUID]*domain.Job),
		results:     make(map[uuid.UUID]*domain.JobResult),
		History:     make(map[uuid.UUID][]domain.JobStatus),
		ProgressLog: make(map[uuid.UUID][]int),
	}
}

func copyJob(j *domain.Job) *domain.Job {
	c := *j
	if j.LockedAt != nil {
		t := *j.LockedAt
		c.LockedAt = &t
	}
	c.Result = nil
	return &c
}

func (m *MockJobRepository) record(j *domain.Job) {
	m.History[j.ID] = append(m.History[j.ID], j.Status)
	m.ProgressLog[j.ID] = append(m.ProgressLog[j.ID], j.Progress)
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = copyJob(job)
	m.record(job)
	return nil
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.GetByIDFunc != nil {
		if err := m.GetByIDFunc(ctx, id); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.load(id)
}

func (m *MockJobRepository) load(id uuid.UUID) (*domain.Job, error) {
	stored, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	job := copyJob(stored)
	if res, ok := m.results[id]; ok {
		r := *res
		job.Result = &r
	}
	return job, nil
}

func (m *MockJobRepository) Update(ctx context.Context, job *domain.Job, expected domain.JobStatus) error {
	if m.UpdateFunc != nil {
		if err := m.UpdateFunc(ctx, job, expected); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkExpected(job.ID, expected); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[job.ID] = copyJob(job)
	m.record(job)
	return nil
}

func (m *MockJobRepository) Complete(ctx context.Context, job *domain.Job, result *domain.JobResult) error {
	if m.CompleteFunc != nil {
		if err := m.CompleteFunc(ctx, job, result); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkExpected(job.ID, domain.StatusProcessing); err != nil {
		return err
	}
	if _, exists := m.results[job.ID]; exists {
		return fmt.Errorf("mock: duplicate result for job %s", job.ID)
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[job.ID] = copyJob(job)
	r := *result
	m.results[job.ID] = &r
	m.record(job)
	job.Result = result
	return nil
}

func (m *MockJobRepository) checkExpected(id uuid.UUID, expected domain.JobStatus) error {
	stored, ok := m.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if stored.Status != expected {
		return fmt.Errorf("%w: now %s", domain.ErrStaleState, stored.Status)
	}
	return nil
}

func (m *MockJobRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Job, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*domain.Job
	for id, j := range m.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.FileType != "" && j.FileType != filter.FileType {
			continue
		}
		job, _ := m.load(id)
		matched = append(matched, job)
	}
	sort.Slice(matched, func(a, b int) bool {
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MockJobRepository) ListStale(ctx context.Context, status domain.JobStatus, before time.Time, limit int) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []*domain.Job
	for id, j := range m.jobs {
		if j.Status != status {
			continue
		}
		ref := j.UpdatedAt
		if status == domain.StatusProcessing {
			if j.LockedAt == nil {
				continue
			}
			ref = *j.LockedAt
		}
		if ref.Before(before) {
			job, _ := m.load(id)
			stale = append(stale, job)
		}
	}
	sort.Slice(stale, func(a, b int) bool {
		return stale[a].UpdatedAt.Before(stale[b].UpdatedAt)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (m *MockJobRepository) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Put stores a job as-is, bypassing lifecycle rules (for test setup).
func (m *MockJobRepository) Put(job *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(job)
}

// Snapshot returns the stored job with its result (for test assertions).
func (m *MockJobRepository) Snapshot(id uuid.UUID) (*domain.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, err := m.load(id)
	return job, err == nil
}

// ResultCount returns how many results exist for a job.
func (m *MockJobRepository) ResultCount(id uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.results[id]; ok {
		return 1
	}
	return 0
}

// StatusHistory returns a copy of the persisted status sequence for a job.
func (m *MockJobRepository) StatusHistory(id uuid.UUID) []domain.JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.JobStatus(nil), m.History[id]...)
}

// ProgressHistory returns a copy of the persisted progress sequence for a job.
func (m *MockJobRepository) ProgressHistory(id uuid.UUID) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.ProgressLog[id]...)
}

// GetAll returns all stored jobs (for test assertions).
func (m *MockJobRepository) GetAll() []*domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Job, 0, len(m.jobs))
	for id := range m.jobs {
		job, _ := m.load(id)
		result = append(result, job)
	}
	return result
}

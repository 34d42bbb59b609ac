package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/publisher"
)

// Ensure MockPublisher implements publisher.Publisher.
var _ publisher.Publisher = (*MockPublisher)(nil)

// MockPublisher is an in-memory work channel for testing. Like the real publisher it keeps
// at most one in-flight item per job.
type MockPublisher struct {
	mu       sync.Mutex
	inFlight map[uuid.UUID]*domain.WorkItem

	Published []*domain.WorkItem
	Removed   []uuid.UUID

	PublishFn func(ctx context.Context, item *domain.WorkItem) error
	RemoveFn  func(ctx context.Context, jobID uuid.UUID) (bool, error)
	PingFn    func(ctx context.Context) error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{inFlight: make(map[uuid.UUID]*domain.WorkItem)}
}

func (m *MockPublisher) Publish(ctx context.Context, item *domain.WorkItem) error {
	if m.PublishFn != nil {
		if err := m.PublishFn(ctx, item); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inFlight[item.JobID]; ok {
		return nil
	}
	m.inFlight[item.JobID] = item
	m.Published = append(m.Published, item)
	return nil
}

func (m *MockPublisher) Remove(ctx context.Context, jobID uuid.UUID) (bool, error) {
	if m.RemoveFn != nil {
		return m.RemoveFn(ctx, jobID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, jobID)
	if _, ok := m.inFlight[jobID]; !ok {
		return false, nil
	}
	delete(m.inFlight, jobID)
	return true, nil
}

// Take claims the in-flight item for a job the way a worker would, reporting false
// when it was removed or already taken.
func (m *MockPublisher) Take(jobID uuid.UUID) (*domain.WorkItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.inFlight[jobID]
	if ok {
		delete(m.inFlight, jobID)
	}
	return item, ok
}

// InFlight reports whether an item for the job is still waiting to be claimed.
func (m *MockPublisher) InFlight(jobID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inFlight[jobID]
	return ok
}

func (m *MockPublisher) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

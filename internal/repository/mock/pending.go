package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/reel/internal/repository"
)

var _ repository.PendingIndex = (*PendingIndex)(nil)

// PendingIndex is an in-memory repository.PendingIndex.
type PendingIndex struct {
	mu   sync.Mutex
	keys map[uuid.UUID]struct{}

	MarkFn   func(ctx context.Context, jobID uuid.UUID) (bool, error)
	RemoveFn func(ctx context.Context, jobID uuid.UUID) (bool, error)
	PingFn   func(ctx context.Context) error
}

// NewPendingIndex creates an empty index.
func NewPendingIndex() *PendingIndex {
	return &PendingIndex{keys: make(map[uuid.UUID]struct{})}
}

func (p *PendingIndex) Mark(ctx context.Context, jobID uuid.UUID) (bool, error) {
	if p.MarkFn != nil {
		return p.MarkFn(ctx, jobID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.keys[jobID]; ok {
		return false, nil
	}
	p.keys[jobID] = struct{}{}
	return true, nil
}

func (p *PendingIndex) Remove(ctx context.Context, jobID uuid.UUID) (bool, error) {
	if p.RemoveFn != nil {
		return p.RemoveFn(ctx, jobID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.keys[jobID]; !ok {
		return false, nil
	}
	delete(p.keys, jobID)
	return true, nil
}

func (p *PendingIndex) Ping(ctx context.Context) error {
	if p.PingFn != nil {
		return p.PingFn(ctx)
	}
	return nil
}

// Has reports whether the key is present (for test assertions).
func (p *PendingIndex) Has(jobID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.keys[jobID]
	return ok
}

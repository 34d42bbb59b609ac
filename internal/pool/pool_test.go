package pool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/pipeline"
	"github.com/Harsh-BH/reel/internal/pool"
	"github.com/Harsh-BH/reel/internal/repository/mock"
	"github.com/Harsh-BH/reel/internal/usecase"
)

type counters struct {
	acked, failed atomic.Int32
}

type executorFunc func(ctx context.Context, item *domain.WorkItem) error

func (f executorFunc) Execute(ctx context.Context, item *domain.WorkItem) error { return f(ctx, item) }

func newMessage(item *domain.WorkItem, claimed bool, c *counters) *domain.WorkMessage {
	return &domain.WorkMessage{
		Item:    item,
		Attempt: 1,
		Claim: func(ctx context.Context) (bool, error) {
			return claimed, nil
		},
		Ack: func() error {
			c.acked.Add(1)
			return nil
		},
		Fail: func(ctx context.Context, cause error) error {
			c.failed.Add(1)
			return nil
		},
	}
}

func pendingJob(repo *mock.MockJobRepository) *domain.WorkItem {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.New(),
		FileName:  "video.mp4",
		FileSize:  1024,
		FileType:  domain.FileTypeVideo,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	repo.Put(job)
	return domain.NewWorkItem(job)
}

func newExecutor(repo *mock.MockJobRepository) *usecase.ExecuteJobUsecase {
	registry := pipeline.NewRegistry(pipeline.New(pipeline.Checkpoints(0, 25, 60, 100)...))
	return usecase.NewExecuteJobUsecase(repo, registry, nil, zap.NewNop())
}

// Test: pool processes items and ACKs them.
func TestPool_ProcessAndAck(t *testing.T) {
	repo := mock.NewMockJobRepository()
	ch := make(chan *domain.WorkMessage, 16)
	ctx, cancel := context.WithCancel(context.Background())
	wp := pool.NewWorkerPool(2, ch, newExecutor(repo), zap.NewNop())
	wp.Start(ctx)

	var c counters
	var items []*domain.WorkItem
	for i := 0; i < 5; i++ {
		item := pendingJob(repo)
		items = append(items, item)
		ch <- newMessage(item, true, &c)
	}

	time.Sleep(200 * time.Millisecond)
	cancel()
	wp.Stop()

	if c.acked.Load() != 5 {
		t.Errorf("expected 5 ACKs, got %d", c.acked.Load())
	}
	if c.failed.Load() != 0 {
		t.Errorf("expected 0 failures, got %d", c.failed.Load())
	}
	for _, item := range items {
		job, _ := repo.Snapshot(item.JobID)
		if job.Status != domain.StatusCompleted {
			t.Errorf("job %s: expected COMPLETED, got %s", item.JobID, job.Status)
		}
	}
}

// Test: an item whose key is gone (cancelled before claim) is acked without running.
func TestPool_UnclaimedItemIsSkipped(t *testing.T) {
	repo := mock.NewMockJobRepository()
	ch := make(chan *domain.WorkMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())

	var ran atomic.Bool
	exec := executorFunc(func(ctx context.Context, item *domain.WorkItem) error {
		ran.Store(true)
		return nil
	})
	wp := pool.NewWorkerPool(1, ch, exec, zap.NewNop())
	wp.Start(ctx)

	var c counters
	ch <- newMessage(pendingJob(repo), false, &c)

	time.Sleep(100 * time.Millisecond)
	cancel()
	wp.Stop()

	if ran.Load() {
		t.Error("unclaimed item must not execute")
	}
	if c.acked.Load() != 1 {
		t.Errorf("expected 1 ACK, got %d", c.acked.Load())
	}
}

// Test: execution errors go back to the channel's retry policy.
func TestPool_FailsOnError(t *testing.T) {
	repo := mock.NewMockJobRepository()
	ch := make(chan *domain.WorkMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	wp := pool.NewWorkerPool(1, ch, newExecutor(repo), zap.NewNop())
	wp.Start(ctx)

	var c counters
	missing := &domain.WorkItem{JobID: uuid.New(), FileName: "gone.mp4", FileSize: 1, FileType: domain.FileTypeVideo}
	ch <- newMessage(missing, true, &c)

	time.Sleep(100 * time.Millisecond)
	cancel()
	wp.Stop()

	if c.failed.Load() != 1 {
		t.Errorf("expected 1 failure, got %d", c.failed.Load())
	}
	if c.acked.Load() != 0 {
		t.Errorf("expected 0 ACKs, got %d", c.acked.Load())
	}
}

// Test: a claim error does not block execution; the store re-check still applies.
func TestPool_ClaimErrorStillExecutes(t *testing.T) {
	repo := mock.NewMockJobRepository()
	ch := make(chan *domain.WorkMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	wp := pool.NewWorkerPool(1, ch, newExecutor(repo), zap.NewNop())
	wp.Start(ctx)

	var c counters
	item := pendingJob(repo)
	msg := newMessage(item, true, &c)
	msg.Claim = func(ctx context.Context) (bool, error) {
		return false, errors.New("redis: i/o timeout")
	}
	ch <- msg

	time.Sleep(100 * time.Millisecond)
	cancel()
	wp.Stop()

	job, _ := repo.Snapshot(item.JobID)
	if job.Status != domain.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", job.Status)
	}
	if c.acked.Load() != 1 {
		t.Errorf("expected 1 ACK, got %d", c.acked.Load())
	}
}

// Test: a panicking executor fails the item and the worker keeps serving.
func TestPool_RecoversFromPanic(t *testing.T) {
	ch := make(chan *domain.WorkMessage, 2)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	exec := executorFunc(func(ctx context.Context, item *domain.WorkItem) error {
		if calls.Add(1) == 1 {
			panic("stage blew up")
		}
		return nil
	})
	wp := pool.NewWorkerPool(1, ch, exec, zap.NewNop())
	wp.Start(ctx)

	var c counters
	repo := mock.NewMockJobRepository()
	ch <- newMessage(pendingJob(repo), true, &c)
	ch <- newMessage(pendingJob(repo), true, &c)

	time.Sleep(100 * time.Millisecond)
	cancel()
	wp.Stop()

	if c.failed.Load() != 1 || c.acked.Load() != 1 {
		t.Errorf("expected 1 failure and 1 ACK, got %d/%d", c.failed.Load(), c.acked.Load())
	}
}

// Test: shutdown does not cut short a claimed item.
func TestPool_GracefulShutdownFinishesInFlight(t *testing.T) {
	ch := make(chan *domain.WorkMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	exec := executorFunc(func(runCtx context.Context, item *domain.WorkItem) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		return runCtx.Err()
	})
	wp := pool.NewWorkerPool(1, ch, exec, zap.NewNop())
	wp.Start(ctx)

	var c counters
	ch <- newMessage(pendingJob(mock.NewMockJobRepository()), true, &c)

	<-started
	cancel()
	wp.Stop()

	if c.acked.Load() != 1 {
		t.Errorf("expected in-flight item to finish and ACK, got %d ACKs / %d failures", c.acked.Load(), c.failed.Load())
	}
}

func indexMessage(idx *mock.PendingIndex, item *domain.WorkItem, c *counters) *domain.WorkMessage {
	msg := newMessage(item, true, c)
	msg.Claim = func(ctx context.Context) (bool, error) {
		return idx.Remove(ctx, item.JobID)
	}
	return msg
}

// Test: a worker that dies after claiming leaves a PROCESSING job; the broker's redelivery
// finds no key and must still reach the store, which reclaims and completes the job.
func TestPool_RedeliveryAfterCrashReclaims(t *testing.T) {
	repo := mock.NewMockJobRepository()
	idx := mock.NewPendingIndex()
	item := pendingJob(repo)
	bg := context.Background()

	if ok, _ := idx.Mark(bg, item.JobID); !ok {
		t.Fatal("expected key to be marked")
	}

	// First delivery: key claimed and job claimed, then the worker is gone without settling.
	if ok, _ := idx.Remove(bg, item.JobID); !ok {
		t.Fatal("expected first claim to take the key")
	}
	job, _ := repo.Snapshot(item.JobID)
	if err := job.Claim(time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if err := repo.Update(bg, job, domain.StatusPending); err != nil {
		t.Fatal(err)
	}

	ch := make(chan *domain.WorkMessage, 1)
	ctx, cancel := context.WithCancel(bg)
	wp := pool.NewWorkerPool(1, ch, newExecutor(repo), zap.NewNop())
	wp.Start(ctx)

	var c counters
	redelivery := indexMessage(idx, item, &c)
	redelivery.Redelivered = true
	ch <- redelivery

	time.Sleep(200 * time.Millisecond)
	cancel()
	wp.Stop()

	got, _ := repo.Snapshot(item.JobID)
	if got.Status != domain.StatusCompleted || got.Progress != 100 || got.LockedAt != nil {
		t.Errorf("expected reclaimed job COMPLETED/100 unlocked, got %s/%d locked=%v", got.Status, got.Progress, got.LockedAt != nil)
	}
	if repo.ResultCount(item.JobID) != 1 {
		t.Errorf("expected exactly one result, got %d", repo.ResultCount(item.JobID))
	}
	if c.acked.Load() != 1 || c.failed.Load() != 0 {
		t.Errorf("expected 1 ACK and no failures, got %d/%d", c.acked.Load(), c.failed.Load())
	}
}

// Test: a redelivered item of a cancelled job reaches the store and is settled as a no-op.
func TestPool_RedeliveryOfCancelledJobIsNoop(t *testing.T) {
	repo := mock.NewMockJobRepository()
	idx := mock.NewPendingIndex()
	item := pendingJob(repo)
	job, _ := repo.Snapshot(item.JobID)
	job.Status = domain.StatusCancelled
	repo.Put(job)

	ch := make(chan *domain.WorkMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	wp := pool.NewWorkerPool(1, ch, newExecutor(repo), zap.NewNop())
	wp.Start(ctx)

	var c counters
	msg := indexMessage(idx, item, &c)
	msg.Redelivered = true
	ch <- msg

	time.Sleep(100 * time.Millisecond)
	cancel()
	wp.Stop()

	got, _ := repo.Snapshot(item.JobID)
	if got.Status != domain.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got.Status)
	}
	if repo.ResultCount(item.JobID) != 0 {
		t.Error("cancelled job must not get a result")
	}
	if c.acked.Load() != 1 {
		t.Errorf("expected 1 ACK, got %d", c.acked.Load())
	}
}

// Test: an item that outlived its key TTL is processed rather than dropped.
func TestPool_ExpiredKeyStillProcesses(t *testing.T) {
	repo := mock.NewMockJobRepository()
	idx := mock.NewPendingIndex()
	item := pendingJob(repo)

	ch := make(chan *domain.WorkMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	wp := pool.NewWorkerPool(1, ch, newExecutor(repo), zap.NewNop())
	wp.Start(ctx)

	var c counters
	msg := indexMessage(idx, item, &c)
	msg.KeyExpired = true
	ch <- msg

	time.Sleep(200 * time.Millisecond)
	cancel()
	wp.Stop()

	got, _ := repo.Snapshot(item.JobID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
}

// Test: a first delivery whose key was removed is still skipped.
func TestPool_FirstDeliveryWithoutKeyIsSkipped(t *testing.T) {
	repo := mock.NewMockJobRepository()
	idx := mock.NewPendingIndex()
	item := pendingJob(repo)

	ch := make(chan *domain.WorkMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	wp := pool.NewWorkerPool(1, ch, newExecutor(repo), zap.NewNop())
	wp.Start(ctx)

	var c counters
	ch <- indexMessage(idx, item, &c)

	time.Sleep(100 * time.Millisecond)
	cancel()
	wp.Stop()

	got, _ := repo.Snapshot(item.JobID)
	if got.Status != domain.StatusPending {
		t.Errorf("expected PENDING untouched, got %s", got.Status)
	}
	if c.acked.Load() != 1 {
		t.Errorf("expected 1 ACK, got %d", c.acked.Load())
	}
}

package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/metrics"
)

// Executor runs one work item to a settled state.
type Executor interface {
	Execute(ctx context.Context, item *domain.WorkItem) error
}

// WorkerPool manages a fixed-size pool of goroutines that process work items.
// Each goroutine owns at most one job at a time.
type WorkerPool struct {
	size     int
	items    <-chan *domain.WorkMessage
	executor Executor
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, items <-chan *domain.WorkMessage, executor Executor, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:     size,
		items:    items,
		executor: executor,
		logger:   logger,
	}
}

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current item and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.items:
			if !ok {
				p.logger.Debug("Work channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

// handle claims, executes and settles one delivery. Shutdown does not interrupt an item
// that was already claimed: it runs to a settled state on a context detached from ctx.
func (p *WorkerPool) handle(ctx context.Context, id int, msg *domain.WorkMessage) {
	log := p.logger.With(
		zap.Int("worker_id", id),
		zap.String("job_id", msg.Item.JobID.String()),
		zap.Int("attempt", msg.Attempt),
	)
	runCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Worker panic recovered", zap.Any("panic", r))
			p.fail(runCtx, msg, fmt.Errorf("panic: %v", r), log)
		}
	}()

	claimed, err := msg.Claim(runCtx)
	if err != nil {
		// The store re-check still guards against running a cancelled job.
		log.Warn("Could not claim work item key, executing anyway", zap.Error(err))
		claimed = true
	}
	if !claimed && (msg.Redelivered || msg.KeyExpired) {
		// The key went with an earlier claim or its TTL. Whether the job still needs work is
		// decided by the store: terminal is a no-op, PROCESSING is reclaimed.
		log.Info("Work item key missing on recovered delivery, deferring to store",
			zap.Bool("redelivered", msg.Redelivered),
			zap.Bool("key_expired", msg.KeyExpired),
		)
		claimed = true
	}
	if !claimed {
		metrics.ItemsSkipped.Inc()
		log.Info("Work item removed or already consumed, skipping")
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK skipped message", zap.Error(ackErr))
		}
		return
	}

	log.Info("Worker processing job", zap.String("file_type", string(msg.Item.FileType)))

	start := time.Now()
	err = func() error {
		metrics.WorkersActive.Inc()
		defer metrics.WorkersActive.Dec()
		return p.executor.Execute(runCtx, msg.Item)
	}()

	if err != nil {
		log.Error("Job execution failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		p.fail(runCtx, msg, err, log)
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		log.Error("Failed to ACK message after execution", zap.Error(ackErr))
	}
}

func (p *WorkerPool) fail(ctx context.Context, msg *domain.WorkMessage, cause error, log *zap.Logger) {
	metrics.ItemsFailed.Inc()
	if err := msg.Fail(ctx, cause); err != nil {
		log.Error("Failed to hand message back to the work channel", zap.Error(err))
	}
}

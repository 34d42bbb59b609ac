package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/broker"
	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/repository"
)

const (
	// Reconnection settings
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second

	// Publish timeout
	publishTimeout = 5 * time.Second
)

// Publisher is the submission side of the work channel.
type Publisher interface {
	// Publish enqueues a work item, idempotent by job id: while an item for the same job is
	// still in flight, a second publish is a no-op.
	Publish(ctx context.Context, item *domain.WorkItem) error

	// Remove withdraws the in-flight item for a job. It reports false, without error,
	// when there is nothing to remove (already claimed by a worker or already removed).
	Remove(ctx context.Context, jobID uuid.UUID) (bool, error)

	// Ping reports whether the broker connection is usable.
	Ping(ctx context.Context) error

	Close() error
}

type rabbitPublisher struct {
	url     string
	pending repository.PendingIndex
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

// NewRabbitMQPublisher creates a RabbitMQ publisher with publisher confirms and declares the topology.
func NewRabbitMQPublisher(url string, pending repository.PendingIndex, logger *zap.Logger) (Publisher, error) {
	p := &rabbitPublisher{
		url:     url,
		pending: pending,
		logger:  logger,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	// Watch for connection closures and reconnect
	go p.watchConnection()

	return p, nil
}

func (p *rabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq: channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	if err := broker.Declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	p.logger.Info("RabbitMQ publisher initialized",
		zap.String("exchange", broker.ExchangeName),
		zap.String("queue", broker.QueueName),
	)

	return nil
}

// watchConnection monitors the connection and reconnects on failure.
func (p *rabbitPublisher) watchConnection() {
	for {
		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			return
		}
		conn := p.conn
		p.mu.RUnlock()

		if conn == nil {
			time.Sleep(reconnectDelay)
			continue
		}

		reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
		if !ok || reason == nil {
			return
		}

		p.logger.Warn("RabbitMQ connection lost, reconnecting...",
			zap.String("reason", reason.Error()),
		)

		p.mu.Lock()
		p.channel = nil
		p.mu.Unlock()

		delay := reconnectDelay
		for {
			p.mu.RLock()
			if p.closed {
				p.mu.RUnlock()
				return
			}
			p.mu.RUnlock()

			time.Sleep(delay)

			if err := p.connect(); err != nil {
				p.logger.Warn("RabbitMQ reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
				delay = delay * 2
				if delay > maxReconnectDelay {
					delay = maxReconnectDelay
				}
				continue
			}

			p.logger.Info("RabbitMQ reconnected successfully")
			break
		}
	}
}

func (p *rabbitPublisher) Publish(ctx context.Context, item *domain.WorkItem) error {
	marked, err := p.pending.Mark(ctx, item.JobID)
	if err != nil {
		return err
	}
	if !marked {
		p.logger.Debug("Work item already in flight, skipping publish",
			zap.String("job_id", item.JobID.String()),
		)
		return nil
	}

	if err := p.publish(ctx, item); err != nil {
		if _, rmErr := p.pending.Remove(ctx, item.JobID); rmErr != nil {
			p.logger.Warn("Failed to clear pending key after publish failure",
				zap.String("job_id", item.JobID.String()),
				zap.Error(rmErr),
			)
		}
		return fmt.Errorf("%w: %w", domain.ErrChannelUnavailable, err)
	}
	return nil
}

func (p *rabbitPublisher) publish(ctx context.Context, item *domain.WorkItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal work item: %w", err)
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()

	if ch == nil {
		return errors.New("rabbitmq: channel not available (reconnecting)")
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(publishCtx,
		broker.ExchangeName,
		broker.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    item.JobID.String(),
			Timestamp:    time.Now(),
			Headers:      amqp.Table{broker.AttemptHeader: int32(1)},
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	acked, err := confirm.WaitContext(publishCtx)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish confirmation (job_id=%s): %w", item.JobID, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq: broker nacked message (job_id=%s)", item.JobID)
	}

	p.logger.Debug("Published work item to RabbitMQ",
		zap.String("job_id", item.JobID.String()),
		zap.Int("body_size", len(body)),
	)
	return nil
}

func (p *rabbitPublisher) Remove(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return p.pending.Remove(ctx, jobID)
}

func (p *rabbitPublisher) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.conn == nil || p.conn.IsClosed() || p.channel == nil {
		return errors.New("rabbitmq: not connected")
	}
	return p.pending.Ping(ctx)
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

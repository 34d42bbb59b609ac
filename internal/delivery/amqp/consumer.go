package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/backoff"
	"github.com/Harsh-BH/reel/internal/broker"
	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/repository"
)

const (
	// Reconnection parameters
	maxReconnectDelay  = 30 * time.Second
	baseReconnectDelay = 1 * time.Second

	retryPublishTimeout = 5 * time.Second
)

// Options configures delivery settlement.
type Options struct {
	// Prefetch bounds unacknowledged deliveries; set it to the worker pool size.
	Prefetch int
	// MaxAttempts is the number of deliveries before an item is dead-lettered.
	MaxAttempts int
	// Retry computes the delay before the next attempt of a failed item.
	Retry backoff.Strategy
	// PendingTTL is the lifetime of an item's index key; older deliveries are treated as
	// having lost their key rather than as removed.
	PendingTTL time.Duration
}

// Consumer listens to RabbitMQ and dispatches WorkMessages (with settlement callbacks) to a channel.
// Deliveries are never auto-acked: the worker pool settles each one after it has been claimed
// and executed.
type Consumer struct {
	url     string
	opts    Options
	pending repository.PendingIndex
	conn    *amqplib.Connection
	channel *amqplib.Channel
	logger  *zap.Logger
	items   chan<- *domain.WorkMessage

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewConsumer creates a new RabbitMQ consumer and declares the topology.
func NewConsumer(url string, pending repository.PendingIndex, opts Options, items chan<- *domain.WorkMessage, logger *zap.Logger) (*Consumer, error) {
	if opts.Prefetch < 1 {
		opts.Prefetch = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Retry == nil {
		opts.Retry = backoff.NewJittered(time.Second, time.Minute)
	}

	c := &Consumer{
		url:     url,
		opts:    opts,
		pending: pending,
		logger:  logger,
		items:   items,
		closeCh: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Consumer) connect() error {
	conn, err := amqplib.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}

	// Retries are republished on this channel.
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp confirm: %w", err)
	}

	if err := broker.Declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp topology: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	return nil
}

// Start begins consuming messages. It blocks until the context is cancelled.
// On connection loss it automatically reconnects with exponential backoff.
func (c *Consumer) Start(ctx context.Context) error {
	reconnect := backoff.NewExponential(baseReconnectDelay, maxReconnectDelay)
	for {
		err := c.consume(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-c.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		c.logger.Warn("AMQP consumer lost connection, reconnecting...", zap.Error(err))

		for attempt := 1; ; attempt++ {
			delay := reconnect.Delay(attempt)
			c.logger.Info("Reconnect attempt",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)

			select {
			case <-c.closeCh:
				return nil
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}

			if err := c.connect(); err != nil {
				c.logger.Error("Reconnect failed", zap.Error(err))
				continue
			}

			c.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

// consume runs one consume session until the delivery channel closes or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	deliveries, err := ch.Consume(
		broker.QueueName,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.logger.Info("AMQP consumer started",
		zap.String("queue", broker.QueueName),
		zap.Int("prefetch", c.opts.Prefetch),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("AMQP consumer stopping (context cancelled)")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			var item domain.WorkItem
			if err := json.Unmarshal(delivery.Body, &item); err != nil {
				c.logger.Error("Failed to unmarshal work item",
					zap.Error(err),
					zap.String("body", string(delivery.Body)),
				)
				delivery.Nack(false, false) // reject → DLQ
				continue
			}

			msg := c.message(ch, delivery, &item)

			c.logger.Debug("Received work item",
				zap.String("job_id", item.JobID.String()),
				zap.Int("attempt", msg.Attempt),
			)

			select {
			case c.items <- msg:
			case <-ctx.Done():
				// Not claimed yet, so the pending key is intact for the redelivery.
				delivery.Nack(false, true)
				return nil
			}
		}
	}
}

// message wraps a delivery with its settlement callbacks. The closures capture the channel the
// delivery arrived on; after a reconnect, settling a stale tag fails and the broker redelivers.
func (c *Consumer) message(ch *amqplib.Channel, delivery amqplib.Delivery, item *domain.WorkItem) *domain.WorkMessage {
	tag := delivery.DeliveryTag
	attempt := broker.Attempt(delivery.Headers)
	body := delivery.Body

	return &domain.WorkMessage{
		Item:        item,
		Attempt:     attempt,
		Redelivered: delivery.Redelivered,
		KeyExpired:  keyExpired(delivery.Timestamp, c.opts.PendingTTL, time.Now()),
		Claim: func(ctx context.Context) (bool, error) {
			return c.pending.Remove(ctx, item.JobID)
		},
		Ack: func() error {
			return ch.Ack(tag, false)
		},
		Fail: func(ctx context.Context, cause error) error {
			return c.fail(ctx, ch, tag, body, item, attempt, cause)
		},
	}
}

// keyExpired reports whether an item published at publishedAt has outlived its index key.
// Every publish, including a retry, stamps the time it marks the key.
func keyExpired(publishedAt time.Time, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || publishedAt.IsZero() {
		return false
	}
	return now.Sub(publishedAt) >= ttl
}

// fail schedules a delayed retry through the retry queue, or dead-letters the delivery once
// the attempt budget is spent.
func (c *Consumer) fail(ctx context.Context, ch *amqplib.Channel, tag uint64, body []byte, item *domain.WorkItem, attempt int, cause error) error {
	log := c.logger.With(
		zap.String("job_id", item.JobID.String()),
		zap.Int("attempt", attempt),
		zap.NamedError("cause", cause),
	)

	if attempt >= c.opts.MaxAttempts {
		log.Warn("Work item exhausted its attempts, dead-lettering")
		return ch.Nack(tag, false, false)
	}

	marked, err := c.pending.Mark(ctx, item.JobID)
	if err != nil {
		log.Error("Cannot re-mark work item for retry, dead-lettering", zap.Error(err))
		return ch.Nack(tag, false, false)
	}
	if !marked {
		// Another item for this job was published meanwhile; it carries the work.
		log.Info("Newer work item already in flight, dropping retry")
		return ch.Ack(tag, false)
	}

	delay := c.opts.Retry.Delay(attempt)
	pubCtx, cancel := context.WithTimeout(ctx, retryPublishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(pubCtx,
		broker.ExchangeName,
		broker.RetryRoutingKey(),
		false,
		false,
		amqplib.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqplib.Persistent,
			MessageId:    item.JobID.String(),
			Timestamp:    time.Now(),
			Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
			Headers:      amqplib.Table{broker.AttemptHeader: int32(attempt + 1)},
			Body:         body,
		},
	)
	if err == nil {
		var acked bool
		acked, err = confirm.WaitContext(pubCtx)
		if err == nil && !acked {
			err = fmt.Errorf("broker nacked retry")
		}
	}
	if err != nil {
		// The key stays marked so the requeued delivery can still be claimed.
		log.Error("Retry publish failed, requeueing delivery", zap.Error(err))
		return ch.Nack(tag, false, true)
	}

	log.Info("Work item scheduled for retry", zap.Duration("delay", delay))
	return ch.Ack(tag, false)
}

// Close gracefully shuts down the consumer.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

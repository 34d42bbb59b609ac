// Package broker declares the RabbitMQ topology shared by the publisher and the consumer.
package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "reel.direct"
	RoutingKey   = "process"
	QueueName    = "media_tasks"

	// RetryQueueName holds failed items until their per-message TTL expires, then
	// dead-letters them back to QueueName.
	RetryQueueName = "media_tasks.retry"
	retryRouting   = "retry"

	DeadLetterExchange = "reel.dlx"
	DeadLetterQueue    = "media_tasks.dlq"

	// AttemptHeader carries the 1-based delivery attempt of a work item.
	AttemptHeader = "x-attempt"
)

// Declare creates exchanges, queues and bindings. It is idempotent.
func Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}

	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(DeadLetterQueue, RoutingKey, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}

	mainArgs := amqp.Table{
		"x-queue-type":              "quorum",
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": RoutingKey,
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, mainArgs); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(QueueName, RoutingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    ExchangeName,
		"x-dead-letter-routing-key": RoutingKey,
	}
	if _, err := ch.QueueDeclare(RetryQueueName, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("declare retry queue: %w", err)
	}
	if err := ch.QueueBind(RetryQueueName, retryRouting, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind retry queue: %w", err)
	}
	return nil
}

// RetryRoutingKey routes a message into the delayed retry queue.
func RetryRoutingKey() string {
	return retryRouting
}

// Attempt reads the attempt header of a delivery; a missing header means the first attempt.
func Attempt(headers amqp.Table) int {
	switch v := headers[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 1
}

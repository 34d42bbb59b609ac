package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/repository"
)

var _ repository.PendingIndex = (*redisPending)(nil)

const pendingKeyPrefix = "reel:pending:"

type redisPending struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisPendingIndex creates a Redis-backed index of in-flight work items.
// The ttl bounds how long a key outlives a message lost by the broker.
func NewRedisPendingIndex(client *goredis.Client, ttl time.Duration) repository.PendingIndex {
	return &redisPending{client: client, ttl: ttl}
}

func pendingKey(jobID uuid.UUID) string {
	return pendingKeyPrefix + jobID.String()
}

// Mark uses SETNX so a retried publish for the same job cannot create a second in-flight item.
func (r *redisPending) Mark(ctx context.Context, jobID uuid.UUID) (bool, error) {
	ok, err := r.client.SetNX(ctx, pendingKey(jobID), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: mark pending: %w: %w", domain.ErrChannelUnavailable, err)
	}
	return ok, nil
}

// Remove deletes the key; a missing key is reported as false, not as an error.
func (r *redisPending) Remove(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := r.client.Del(ctx, pendingKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: remove pending: %w: %w", domain.ErrChannelUnavailable, err)
	}
	return n > 0, nil
}

func (r *redisPending) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

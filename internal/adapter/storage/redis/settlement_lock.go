package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// SettlementLock implements ports.SettlementLock using Redis SET NX.
// The TTL bounds how long a crashed executor can block a settlement.
type SettlementLock struct {
	client *goredis.Client
	prefix string
}

// NewSettlementLock creates a new Redis-backed settlement lock.
func NewSettlementLock(client *goredis.Client) *SettlementLock {
	return &SettlementLock{
		client: client,
		prefix: "settlement_lock:",
	}
}

// Acquire takes the per-settlement lock. Returns false if another executor
// already holds it.
func (l *SettlementLock) Acquire(ctx context.Context, settlementID uuid.UUID, ttl time.Duration) (bool, error) {
	key := l.prefix + settlementID.String()
	result, err := l.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists, lock is held elsewhere
			return false, nil
		}
		return false, fmt.Errorf("redis settlement lock: %w", err)
	}
	return result == "OK", nil
}

// Release drops the lock. Safe to call when the lock has already expired.
func (l *SettlementLock) Release(ctx context.Context, settlementID uuid.UUID) error {
	key := l.prefix + settlementID.String()
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis settlement unlock: %w", err)
	}
	return nil
}

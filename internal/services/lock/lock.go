// Package lock serializes mutating operations per campaign.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/campaign-engine/pkg/engine"
)

const retryDelay = 25 * time.Millisecond

// Ensure RedisLocker implements Locker interface
var _ engine.Locker = (*RedisLocker)(nil)

// Ensure LocalLocker implements Locker interface
var _ engine.Locker = (*LocalLocker)(nil)

// releaseScript deletes the key only while we still own it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker holds one Redis key per campaign for the length of an
// operation. The TTL bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

func lockKey(campaignID int64) string {
	return fmt.Sprintf("campaign-lock:%d", campaignID)
}

// Lock blocks until the campaign lock is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, campaignID int64) (func(), error) {
	key := lockKey(campaignID)
	owner := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire campaign lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled while waiting for campaign lock: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}

	l.logger.Debug("Campaign lock acquired", "campaign_id", campaignID, "owner", owner)
	return func() {
		// Released on a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, owner).Err(); err != nil {
			l.logger.Error("Failed to release campaign lock", "error", err, "campaign_id", campaignID)
		}
	}, nil
}

// LocalLocker is the in-process variant used with memory storage.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[int64]chan struct{})}
}

func (l *LocalLocker) slot(campaignID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[campaignID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[campaignID] = ch
	}
	return ch
}

func (l *LocalLocker) Lock(ctx context.Context, campaignID int64) (func(), error) {
	ch := l.slot(campaignID)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled while waiting for campaign lock: %w", ctx.Err())
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

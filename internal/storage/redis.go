package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	core "github.com/jwebster45206/campaign-engine/pkg/storage"
)

// RedisDocuments stores each campaign collection as a Redis hash of
// id -> JSON document. Id sequences are plain INCR counters.
type RedisDocuments struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisDocuments implements Documents interface
var _ core.Documents = (*RedisDocuments)(nil)

// reserveScript raises a sequence to at least ARGV[1].
var reserveScript = redis.NewScript(`
	local cur = tonumber(redis.call("get", KEYS[1]) or "0")
	if cur < tonumber(ARGV[1]) then
		redis.call("set", KEYS[1], ARGV[1])
	end
	return 0
`)

// NewRedisDocuments connects to redisURL, which may be a bare host:port
// or a redis:// URL.
func NewRedisDocuments(redisURL string, logger *slog.Logger) (*RedisDocuments, error) {
	client, err := NewRedisClient(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisDocuments{client: client, logger: logger}, nil
}

// NewRedisClient builds a client from a bare address or redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// NewRedisStorage returns a campaign store backed by Redis.
func NewRedisStorage(redisURL string, logger *slog.Logger) (*core.Store, *RedisDocuments, error) {
	docs, err := NewRedisDocuments(redisURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return core.NewStore(docs, logger), docs, nil
}

// Client exposes the underlying client for locks sharing the connection.
func (r *RedisDocuments) Client() *redis.Client {
	return r.client
}

func hashKey(coll string, campaignID int64) string {
	return fmt.Sprintf("campaign:%d:%s", campaignID, coll)
}

func seqKey(coll string) string {
	return "seq:" + coll
}

func (r *RedisDocuments) Get(ctx context.Context, coll string, campaignID, id int64) ([]byte, error) {
	data, err := r.client.HGet(ctx, hashKey(coll, campaignID), strconv.FormatInt(id, 10)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("Redis HGET failed", "collection", coll, "campaign_id", campaignID, "id", id, "error", err)
		return nil, fmt.Errorf("redis hget failed: %w", err)
	}
	return data, nil
}

func (r *RedisDocuments) Put(ctx context.Context, coll string, campaignID, id int64, data []byte) error {
	if err := r.client.HSet(ctx, hashKey(coll, campaignID), strconv.FormatInt(id, 10), data).Err(); err != nil {
		r.logger.Error("Redis HSET failed", "collection", coll, "campaign_id", campaignID, "id", id, "error", err)
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (r *RedisDocuments) Delete(ctx context.Context, coll string, campaignID, id int64) error {
	if err := r.client.HDel(ctx, hashKey(coll, campaignID), strconv.FormatInt(id, 10)).Err(); err != nil {
		r.logger.Error("Redis HDEL failed", "collection", coll, "campaign_id", campaignID, "id", id, "error", err)
		return fmt.Errorf("redis hdel failed: %w", err)
	}
	return nil
}

func (r *RedisDocuments) All(ctx context.Context, coll string, campaignID int64) (map[int64][]byte, error) {
	raw, err := r.client.HGetAll(ctx, hashKey(coll, campaignID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	out := make(map[int64][]byte, len(raw))
	for field, v := range raw {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			r.logger.Warn("Skipping malformed document id", "collection", coll, "field", field)
			continue
		}
		out[id] = []byte(v)
	}
	return out, nil
}

func (r *RedisDocuments) NextID(ctx context.Context, coll string) (int64, error) {
	id, err := r.client.Incr(ctx, seqKey(coll)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}
	return id, nil
}

func (r *RedisDocuments) Reserve(ctx context.Context, coll string, id int64) error {
	if err := reserveScript.Run(ctx, r.client, []string{seqKey(coll)}, id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis reserve failed: %w", err)
	}
	return nil
}

func (r *RedisDocuments) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisDocuments) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisDocuments) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

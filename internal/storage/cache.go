package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/pkg/utils"
)

// AnswerCache is an optional Redis look-aside cache in front of the
// question bank. The relational store remains the source of truth; the
// cache only short-circuits repeated exact-match lookups and is safe to
// run without (a nil *AnswerCache is a valid no-op cache).
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *utils.Logger
}

// NewAnswerCache connects to Redis and verifies the connection
func NewAnswerCache(cfg *config.RedisConfig, logger *utils.Logger) (*AnswerCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := time.Duration(cfg.TTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	logger.Info("Successfully connected to Redis answer cache")
	return &AnswerCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *AnswerCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Get returns the cached answer for a question text, if present
func (c *AnswerCache) Get(ctx context.Context, questionText string) (string, bool) {
	if c == nil {
		return "", false
	}
	value, err := c.client.Get(ctx, cacheKey(questionText)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("Answer cache read failed")
		}
		return "", false
	}
	return value, true
}

// Put stores an answer. Failures are logged and swallowed: the cache is
// strictly opportunistic.
func (c *AnswerCache) Put(ctx context.Context, questionText, answer string) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(questionText), answer, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Answer cache write failed")
	}
}

// Invalidate removes a cached answer, used when a row is deleted
func (c *AnswerCache) Invalidate(ctx context.Context, questionText string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(questionText)).Err(); err != nil {
		c.logger.WithError(err).Warn("Answer cache invalidation failed")
	}
}

// cacheKey hashes the question text so arbitrarily long questions produce
// bounded keys.
func cacheKey(questionText string) string {
	sum := sha256.Sum256([]byte(questionText))
	return "qa:answer:" + hex.EncodeToString(sum[:])
}

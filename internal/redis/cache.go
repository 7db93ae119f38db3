package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ranking-engine/internal/config"
	"github.com/ranking-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache provides Redis-based caching for leaderboard pages and the daily
// challenge. Postgres stays authoritative; everything here is TTL-bounded.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// versionKey holds a per-period counter. Standing writes bump it, which
// orphans every cached page of that period without scanning for keys; the
// orphans age out through their TTL.
func (c *Cache) versionKey(period domain.Period) string {
	return fmt.Sprintf("leaderboard:%s:ver", period)
}

func (c *Cache) pageKey(period domain.Period, version int64, page, pageSize int) string {
	return fmt.Sprintf("leaderboard:%s:v%d:page:%d:%d", period, version, page, pageSize)
}

func (c *Cache) challengeKey(date time.Time) string {
	return fmt.Sprintf("challenge:%s", date.Format("2006-01-02"))
}

func (c *Cache) version(ctx context.Context, period domain.Period) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(period)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting cache version: %w", err)
	}
	return v, nil
}

// GetPage returns a cached leaderboard page, or (nil, nil) on a miss.
func (c *Cache) GetPage(ctx context.Context, period domain.Period, page, pageSize int) (*domain.LeaderboardPage, error) {
	version, err := c.version(ctx, period)
	if err != nil {
		return nil, err
	}

	data, err := c.client.Get(ctx, c.pageKey(period, version, page, pageSize)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cached page: %w", err)
	}

	var result domain.LeaderboardPage
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling cached page: %w", err)
	}
	return &result, nil
}

// SetPage stores a leaderboard page under the period's current version.
func (c *Cache) SetPage(ctx context.Context, result *domain.LeaderboardPage, ttl time.Duration) error {
	version, err := c.version(ctx, result.Period)
	if err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling page: %w", err)
	}

	key := c.pageKey(result.Period, version, result.Page, result.PageSize)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("setting cached page: %w", err)
	}
	return nil
}

// InvalidatePeriod bumps a period's version counter.
func (c *Cache) InvalidatePeriod(ctx context.Context, period domain.Period) error {
	if err := c.client.Incr(ctx, c.versionKey(period)).Err(); err != nil {
		return fmt.Errorf("invalidating period cache: %w", err)
	}
	return nil
}

// GetChallenge returns the cached challenge for a day, or (nil, nil) on a
// miss.
func (c *Cache) GetChallenge(ctx context.Context, date time.Time) (*domain.DailyChallenge, error) {
	data, err := c.client.Get(ctx, c.challengeKey(date)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cached challenge: %w", err)
	}

	var ch domain.DailyChallenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("unmarshaling cached challenge: %w", err)
	}
	return &ch, nil
}

// SetChallenge caches a day's challenge until the day rolls over.
func (c *Cache) SetChallenge(ctx context.Context, ch *domain.DailyChallenge, ttl time.Duration) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshaling challenge: %w", err)
	}
	if err := c.client.Set(ctx, c.challengeKey(ch.Date), data, ttl).Err(); err != nil {
		return fmt.Errorf("setting cached challenge: %w", err)
	}
	return nil
}

// DropChallenge evicts the cached challenge for a day. Called after an
// administrative override so readers see the replacement immediately.
func (c *Cache) DropChallenge(ctx context.Context, date time.Time) error {
	if err := c.client.Del(ctx, c.challengeKey(date)).Err(); err != nil {
		return fmt.Errorf("dropping cached challenge: %w", err)
	}
	return nil
}

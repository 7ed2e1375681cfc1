// Package cache кэширует сводную статистику владельцев в Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mmeshcher/invoicer/internal/model"
)

const (
	statsKeyFmt = "invoicer:stats:%s"

	// DefaultStatsTTL - время жизни закэшированной статистики.
	DefaultStatsTTL = time.Minute
)

// StatsCache хранит model.Stats по владельцу. Любая ошибка Redis
// считается промахом: кэш никогда не ломает основной запрос.
// Нулевой указатель допустим и ведёт себя как пустой кэш.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatsCache подключается к Redis и проверяет соединение.
func NewStatsCache(addr, password string, logger *zap.Logger) (*StatsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newStatsCache(client, DefaultStatsTTL, logger), nil
}

func newStatsCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StatsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsCache{client: client, ttl: ttl, logger: logger}
}

// StatsKey возвращает ключ статистики владельца.
func StatsKey(ownerID string) string {
	return fmt.Sprintf(statsKeyFmt, ownerID)
}

// Get возвращает закэшированную статистику владельца.
func (c *StatsCache) Get(ctx context.Context, ownerID string) (*model.Stats, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, StatsKey(ownerID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("stats cache get failed", zap.String("ownerID", ownerID), zap.Error(err))
		}
		return nil, false
	}

	var stats model.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		c.logger.Warn("stats cache entry corrupted", zap.String("ownerID", ownerID), zap.Error(err))
		return nil, false
	}
	return &stats, true
}

// Set сохраняет статистику владельца на время ttl.
func (c *StatsCache) Set(ctx context.Context, ownerID string, stats model.Stats) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, StatsKey(ownerID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("stats cache set failed", zap.String("ownerID", ownerID), zap.Error(err))
	}
}

// Invalidate удаляет статистику владельца.
func (c *StatsCache) Invalidate(ctx context.Context, ownerID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, StatsKey(ownerID)).Err(); err != nil {
		c.logger.Warn("stats cache invalidate failed", zap.String("ownerID", ownerID), zap.Error(err))
	}
}

// Close закрывает соединение с Redis.
func (c *StatsCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

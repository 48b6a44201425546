package rates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tumapesa/internal/domain"
)

// RedisRateCache stores exchange-rate rows in Redis as JSON.
type RedisRateCache struct {
	client *redis.Client
}

func NewRedisRateCache(client *redis.Client) *RedisRateCache {
	return &RedisRateCache{client: client}
}

func (c *RedisRateCache) Get(ctx context.Context, key string) (*domain.ExchangeRate, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var rate domain.ExchangeRate
	if err := json.Unmarshal(data, &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

func (c *RedisRateCache) Set(ctx context.Context, key string, rate *domain.ExchangeRate, ttl time.Duration) error {
	data, err := json.Marshal(rate)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

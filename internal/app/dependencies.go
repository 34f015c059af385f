// Package app holds cross-module wiring helpers shared by the entry
// points.
package app

import (
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{})
}

// NewAPILimiter builds the global request limiter from a formatted rate
// such as "100-M".
func NewAPILimiter(rdb *redis.Client, formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	store, err := NewLimiterStore(rdb)
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

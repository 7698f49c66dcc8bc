package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// InitRedis initializes the Redis client backing the JWT blacklist and the
// report cache. Both are optional conveniences, so a failed ping logs and
// returns nil instead of aborting startup; callers treat a nil client as
// "cache disabled".
func InitRedis() *redis.Client {
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.dial_timeout_ms", 2000)
	viper.SetDefault("redis.read_timeout_ms", 500)

	// Report queries can fan out several cache lookups per request, so the
	// pool and timeouts are tunable. Short read timeouts keep a slow Redis
	// from stalling report endpoints that can fall back to MySQL anyway.
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%s", viper.GetString("redis.host"), viper.GetString("redis.port")),
		Password:     viper.GetString("redis.password"),
		DB:           viper.GetInt("redis.db"),
		PoolSize:     viper.GetInt("redis.pool_size"),
		DialTimeout:  time.Duration(viper.GetInt("redis.dial_timeout_ms")) * time.Millisecond,
		ReadTimeout:  time.Duration(viper.GetInt("redis.read_timeout_ms")) * time.Millisecond,
		WriteTimeout: time.Duration(viper.GetInt("redis.read_timeout_ms")) * time.Millisecond,
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[CACHE] Redis unavailable at %s, continuing without cache: %v", opts.Addr, err)
		return nil
	}

	log.Printf("[CACHE] Redis connected at %s (pool=%d)", opts.Addr, opts.PoolSize)
	return rdb
}

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/cipherquiz-api/internal/config"
)

// Режимы Redis, различаемые конфигурацией реестра
const (
	redisModeSingle   = "single"
	redisModeSentinel = "sentinel"
	redisModeCluster  = "cluster"
)

const redisPingTimeout = 5 * time.Second

// NewUniversalRedisClient подключает к Redis кеш таблиц лидеров, лимитер
// запросов и дедупликацию колбэков движка. Режим single/sentinel/cluster
// задаётся конфигурацией, подключение проверяется сразу.
func NewUniversalRedisClient(cfg config.RedisConfig) (redis.UniversalClient, error) {
	addresses := cfg.Addrs
	if len(addresses) == 0 {
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, fmt.Errorf("redis: either addrs or addr must be set")
		}
		addresses = []string{cfg.Addr}
	}

	options := &redis.UniversalOptions{
		Addrs:    addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.MaxRetries != 0 {
		options.MaxRetries = cfg.MaxRetries
	}
	if cfg.MinRetryBackoff != 0 {
		options.MinRetryBackoff = time.Duration(cfg.MinRetryBackoff) * time.Millisecond
	}
	if cfg.MaxRetryBackoff != 0 {
		options.MaxRetryBackoff = time.Duration(cfg.MaxRetryBackoff) * time.Millisecond
	}

	mode := cfg.Mode
	if mode == "" {
		mode = redisModeSingle
	}
	switch mode {
	case redisModeSentinel:
		if cfg.MasterName == "" {
			return nil, fmt.Errorf("redis: sentinel mode requires master name")
		}
		options.MasterName = cfg.MasterName
	case redisModeSingle, redisModeCluster:
		// NewUniversalClient различает их сам по числу адресов и MasterName
	default:
		return nil, fmt.Errorf("redis: unsupported mode %q", mode)
	}

	client := redis.NewUniversalClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connect failed (mode=%s addrs=%v): %w", mode, addresses, err)
	}

	return client, nil
}

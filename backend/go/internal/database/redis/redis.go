package redis

import (
	"context"
	"fmt"
	"sync"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/pkg/logger"

	"github.com/go-redis/redis/v8"
)

var (
	client  *redis.Client
	once    sync.Once
	initErr error
)

// GetClient 返回进程内共享的 Redis 客户端，会话历史存放在这里。
func GetClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	once.Do(func() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			initErr = fmt.Errorf("无法连接到 Redis %s: %w", cfg.Address, err)
			return
		}
		logger.New("redis", "", "").WithField("address", cfg.Address).Info("已连接 Redis")
		client = rdb
	})
	return client, initErr
}

// Close 关闭共享客户端。
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// HealthCheck 检查 Redis 是否可达。
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("Redis 客户端未初始化")
	}
	return client.Ping(ctx).Err()
}

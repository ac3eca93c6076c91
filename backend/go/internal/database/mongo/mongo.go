package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	client  *mongo.Client
	once    sync.Once
	initErr error
)

const connectTimeout = 10 * time.Second

// GetClient 返回进程内共享的 MongoDB 客户端，查询日志写入其中。
func GetClient(ctx context.Context, cfg *config.MongoConfig) (*mongo.Client, error) {
	once.Do(func() {
		opts := options.Client().ApplyURI(cfg.Address).SetConnectTimeout(connectTimeout)
		if cfg.Username != "" && cfg.Password != "" {
			opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
		}

		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		c, err := mongo.Connect(ctx, opts)
		if err != nil {
			initErr = fmt.Errorf("无法连接到 MongoDB: %w", err)
			return
		}
		if err = c.Ping(ctx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			initErr = fmt.Errorf("无法 Ping MongoDB: %w", err)
			return
		}
		logger.New("mongodb", "", "").WithField("database", cfg.Database).Info("已连接 MongoDB")
		client = c
	})
	return client, initErr
}

// Collection 返回配置中的查询日志集合。
func Collection(c *mongo.Client, cfg *config.MongoConfig) *mongo.Collection {
	return c.Database(cfg.Database).Collection(cfg.Collection)
}

// Close 断开共享客户端。
func Close(ctx context.Context) error {
	if client != nil {
		return client.Disconnect(ctx)
	}
	return nil
}

// HealthCheck 检查 MongoDB 是否可达。
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("MongoDB 客户端未初始化")
	}
	return client.Ping(ctx, nil)
}

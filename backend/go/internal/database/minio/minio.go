package minio

import (
	"context"
	"fmt"
	"sync"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	client  *minio.Client
	once    sync.Once
	initErr error
)

// GetClient 返回进程内共享的 MinIO 客户端，并确保上传文件所用的存储桶存在。
func GetClient(ctx context.Context, cfg *config.MinIOConfig) (*minio.Client, error) {
	once.Do(func() {
		c, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
		})
		if err != nil {
			initErr = fmt.Errorf("无法创建 MinIO 客户端: %w", err)
			return
		}
		if err := EnsureBucket(ctx, c, cfg.Bucket); err != nil {
			initErr = err
			return
		}
		logger.New("minio", "", "").WithFields(map[string]interface{}{
			"endpoint": cfg.Endpoint,
			"bucket":   cfg.Bucket,
		}).Info("已连接 MinIO")
		client = c
	})
	return client, initErr
}

// EnsureBucket 在存储桶不存在时创建它。
func EnsureBucket(ctx context.Context, c *minio.Client, bucket string) error {
	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 失败: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucket, err)
	}
	return nil
}

// HealthCheck 通过查询存储桶验证连通性和认证。
func HealthCheck(ctx context.Context, bucket string) error {
	if client == nil {
		return fmt.Errorf("MinIO 客户端未初始化")
	}
	if _, err := client.BucketExists(ctx, bucket); err != nil {
		return fmt.Errorf("MinIO 健康检查失败: %w", err)
	}
	return nil
}

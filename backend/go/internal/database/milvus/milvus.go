package milvus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"brandbook/backend/go/internal/config"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。
}

// GetClient 使用单例模式创建并返回一个 Milvus 客户端实例。
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 Milvus: %w", err)
			return
		}
		log.Println("✅ 成功连接到 Milvus!")
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.Client.Close()
		log.Println("ℹ️ 已安全关闭 Milvus 连接。")
	}
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection 确保集合存在，不存在时按给定 Schema 创建，并在向量字段上建立 COSINE 索引，最后加载集合。
func (c *MilvusClient) EnsureCollection(ctx context.Context, schema *entity.Schema, vectorField string) error {
	collName := schema.CollectionName
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		idx, err := c.buildIndexFromConfig(entity.COSINE)
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, vectorField, idx, false); err != nil {
			return fmt.Errorf("为字段 '%s' 创建索引失败: %w", vectorField, err)
		}
		log.Printf("✅ 成功创建集合: %s", collName)
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", collName, err)
	}
	return nil
}

// buildIndexFromConfig 是一个辅助函数，用于从配置构建索引实体。
func (c *MilvusClient) buildIndexFromConfig(metricType entity.MetricType) (entity.Index, error) {
	indexCfg := c.Config.Index
	param := func(name string, def int) int {
		if v, ok := indexCfg.Params[name].(int); ok {
			return v
		}
		return def
	}

	switch indexCfg.IndexType {
	case "IVF_FLAT":
		return entity.NewIndexIvfFlat(metricType, param("nlist", 128))
	case "", "HNSW":
		return entity.NewIndexHNSW(metricType, param("M", 8), param("efConstruction", 96))
	case "IVF_SQ8":
		return entity.NewIndexIvfSQ8(metricType, param("nlist", 128))
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(metricType)
	case "FLAT":
		return entity.NewIndexFlat(metricType)
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", indexCfg.IndexType)
	}
}

// SearchParam 返回与配置的索引类型相匹配的搜索参数。
func (c *MilvusClient) SearchParam() (entity.SearchParam, error) {
	switch c.Config.Index.IndexType {
	case "IVF_FLAT", "IVF_SQ8":
		return entity.NewIndexIvfFlatSearchParam(16)
	case "", "HNSW":
		return entity.NewIndexHNSWSearchParam(64)
	case "FLAT":
		return entity.NewIndexFlatSearchParam()
	default:
		return entity.NewIndexAUTOINDEXSearchParam(1)
	}
}

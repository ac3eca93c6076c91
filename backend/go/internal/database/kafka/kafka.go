package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// KafkaClient 持有用量主题的 writer 以及一个用于管理操作的连接。
type KafkaClient struct {
	Writer *kafka.Writer
	Conn   *kafka.Conn
	Config *config.KafkaConfig
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient 返回进程内共享的 KafkaClient。首次调用时连接第一个 broker，
// 在用量主题不存在时创建它，然后创建写入该主题的 writer。
func GetClient(ctx context.Context, cfg *config.KafkaConfig) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("未配置 Kafka brokers")
			return
		}
		if cfg.UsageTopic == "" {
			initErr = fmt.Errorf("未配置 Kafka 用量主题")
			return
		}

		dialer := &kafka.Dialer{Timeout: 10 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("kafka 初始化连接失败: %w", err)
			return
		}
		if err := ensureTopic(conn, cfg.UsageTopic); err != nil {
			conn.Close()
			initErr = err
			return
		}

		// 以 key 做哈希分区，同一文档的事件保持有序。
		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.UsageTopic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
			RequiredAcks: kafka.RequireOne,
		}

		logger.New("kafka", "", "").WithField("topic", cfg.UsageTopic).Info("已初始化 Kafka 客户端")
		client = &KafkaClient{Writer: writer, Conn: conn, Config: cfg}
	})
	return client, initErr
}

func ensureTopic(conn *kafka.Conn, topic string) error {
	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	for _, p := range partitions {
		if p.Topic == topic {
			return nil
		}
	}
	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("自动创建 Kafka 主题 %s 失败: %w", topic, err)
	}
	return nil
}

// Close 依次关闭 writer 和管理连接。
func (c *KafkaClient) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Writer != nil {
		if err := c.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭 Kafka writer 失败: %w", err))
		}
	}
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭 Kafka 管理连接失败: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("关闭 Kafka 客户端时发生错误: %v", errs)
	}
	return nil
}

// HealthCheck 通过查询控制器检查 Kafka 连接。
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("kafka 客户端未初始化")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.Conn.SetDeadline(deadline)
		defer c.Conn.SetDeadline(time.Time{})
	}
	_, err := c.Conn.Controller()
	return err
}

// ControllerAddress 返回当前控制器地址，健康检查详情中使用。
func (c *KafkaClient) ControllerAddress() (string, error) {
	if c == nil || c.Conn == nil {
		return "", fmt.Errorf("kafka 客户端未初始化")
	}
	controller, err := c.Conn.Controller()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)), nil
}

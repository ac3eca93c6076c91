package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"brandbook/backend/go/internal/models"

	"github.com/segmentio/kafka-go"
)

// UsagePublisher 把用量事件序列化为 JSON 写入用量主题。
type UsagePublisher struct {
	writer *kafka.Writer
}

// NewUsagePublisher 复用客户端的 writer。
func NewUsagePublisher(client *KafkaClient) *UsagePublisher {
	return &UsagePublisher{writer: client.Writer}
}

// PublishUsage 发送一条用量事件。消息 key 优先使用文档 ID，没有文档时使用事件 ID。
func (p *UsagePublisher) PublishUsage(ctx context.Context, event *models.UsageEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化用量事件失败: %w", err)
	}
	key := event.DocumentID
	if key == "" {
		key = event.ID
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		return fmt.Errorf("写入 Kafka 失败: %w", err)
	}
	return nil
}

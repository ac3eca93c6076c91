package models

import "time"

// UsageOperation 标识产生 token 消耗的操作。
type UsageOperation string

const (
	OperationIngest    UsageOperation = "ingest"
	OperationAsk       UsageOperation = "ask"
	OperationSummarize UsageOperation = "summarize"
)

// UsageEvent 是发送到 Kafka、写入 MongoDB 查询日志并计入统计的一条用量记录。
// 即使操作失败或被取消也会记录，以便核算已经计费的调用。
type UsageEvent struct {
	ID         string         `json:"id" bson:"_id"`
	Operation  UsageOperation `json:"operation" bson:"operation"`
	DocumentID string         `json:"document_id,omitempty" bson:"document_id,omitempty"`
	UserID     string         `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Question   string         `json:"question,omitempty" bson:"question,omitempty"`
	Provider   string         `json:"provider,omitempty" bson:"provider,omitempty"`
	Model      string         `json:"model,omitempty" bson:"model,omitempty"`
	Usage      TokenUsage     `json:"usage" bson:"usage"`
	Confidence float64        `json:"confidence,omitempty" bson:"confidence,omitempty"`
	Outcome    string         `json:"outcome" bson:"outcome"` // "ok"、"error" 或 "cancelled"
	Timestamp  time.Time      `json:"timestamp" bson:"timestamp"`
}

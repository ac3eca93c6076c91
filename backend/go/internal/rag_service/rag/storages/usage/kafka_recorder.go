package usage

import (
	"context"

	"brandbook/backend/go/internal/models"
)

// Publisher is the slice of the Kafka usage publisher the recorder needs.
type Publisher interface {
	PublishUsage(ctx context.Context, event *models.UsageEvent) error
}

// StreamRecorder forwards events to the usage topic.
type StreamRecorder struct {
	pub Publisher
}

func NewStreamRecorder(pub Publisher) *StreamRecorder {
	return &StreamRecorder{pub: pub}
}

func (r *StreamRecorder) Record(ctx context.Context, event models.UsageEvent) error {
	return r.pub.PublishUsage(ctx, &event)
}

var _ Recorder = (*StreamRecorder)(nil)

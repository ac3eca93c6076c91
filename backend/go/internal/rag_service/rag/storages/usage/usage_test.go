package usage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"brandbook/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRecorder struct{ err error }

func (f failingRecorder) Record(context.Context, models.UsageEvent) error { return f.err }

type capturingPublisher struct{ events []*models.UsageEvent }

func (p *capturingPublisher) PublishUsage(_ context.Context, e *models.UsageEvent) error {
	p.events = append(p.events, e)
	return nil
}

func TestCountersAccumulate(t *testing.T) {
	ctx := context.Background()
	c := NewCounters()
	require.NoError(t, c.Record(ctx, models.UsageEvent{Operation: models.OperationIngest, Outcome: OutcomeOK,
		Usage: models.TokenUsage{EmbeddingTokens: 900}}))
	require.NoError(t, c.Record(ctx, models.UsageEvent{Operation: models.OperationAsk, Outcome: OutcomeOK,
		Usage: models.TokenUsage{PromptTokens: 300, CompletionTokens: 50, EmbeddingTokens: 8}}))
	require.NoError(t, c.Record(ctx, models.UsageEvent{Operation: models.OperationAsk, Outcome: OutcomeCancelled,
		Usage: models.TokenUsage{EmbeddingTokens: 8, Estimated: true}}))

	got := c.Snapshot()
	assert.Equal(t, 2, got.Questions)
	assert.Equal(t, 1, got.Ingests)
	assert.Equal(t, 1, got.Failures)
	assert.Equal(t, 300, got.Usage.PromptTokens)
	assert.Equal(t, 50, got.Usage.CompletionTokens)
	assert.Equal(t, 916, got.Usage.EmbeddingTokens)
	assert.True(t, got.Usage.Estimated)
}

func TestFanoutReachesEveryRecorder(t *testing.T) {
	counters := NewCounters()
	pub := &capturingPublisher{}
	boom := errors.New("broker down")
	f := Fanout{failingRecorder{boom}, counters, nil, NewStreamRecorder(pub)}

	err := f.Record(context.Background(), models.UsageEvent{ID: "e1", Operation: models.OperationSummarize, Outcome: OutcomeOK})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, counters.Snapshot().Summaries)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "e1", pub.events[0].ID)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeOK, OutcomeOf(nil))
	assert.Equal(t, OutcomeCancelled, OutcomeOf(fmt.Errorf("embed: %w", context.Canceled)))
	assert.Equal(t, OutcomeCancelled, OutcomeOf(context.DeadlineExceeded))
	assert.Equal(t, OutcomeError, OutcomeOf(errors.New("x")))
}

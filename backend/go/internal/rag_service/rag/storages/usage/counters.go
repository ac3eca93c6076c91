package usage

import (
	"context"
	"sync"

	"brandbook/backend/go/internal/models"
)

// Totals is a snapshot of the cumulative counters.
type Totals struct {
	Usage     models.TokenUsage `json:"usage"`
	Questions int               `json:"questions"`
	Ingests   int               `json:"ingests"`
	Summaries int               `json:"summaries"`
	Failures  int               `json:"failures"`
}

// Counters keeps cumulative totals in memory. It backs the stats endpoint and
// is always part of the recorder chain.
type Counters struct {
	mu     sync.Mutex
	totals Totals
}

func NewCounters() *Counters { return &Counters{} }

func (c *Counters) Record(_ context.Context, event models.UsageEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals.Usage = c.totals.Usage.Add(event.Usage)
	switch event.Operation {
	case models.OperationAsk:
		c.totals.Questions++
	case models.OperationIngest:
		c.totals.Ingests++
	case models.OperationSummarize:
		c.totals.Summaries++
	}
	if event.Outcome != OutcomeOK {
		c.totals.Failures++
	}
	return nil
}

// Snapshot returns the current totals.
func (c *Counters) Snapshot() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals
}

var _ Recorder = (*Counters)(nil)

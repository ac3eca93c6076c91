// Package usage records token spend for every provider-backed operation,
// including failed and cancelled ones.
package usage

import (
	"context"
	"errors"

	"brandbook/backend/go/internal/models"
)

// Outcomes of a recorded operation.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Recorder accepts usage events.
type Recorder interface {
	Record(ctx context.Context, event models.UsageEvent) error
}

// OutcomeOf classifies the error an operation finished with.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

// Fanout sends every event to all recorders and joins their errors.
type Fanout []Recorder

func (f Fanout) Record(ctx context.Context, event models.UsageEvent) error {
	var errs []error
	for _, r := range f {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Recorder = Fanout(nil)

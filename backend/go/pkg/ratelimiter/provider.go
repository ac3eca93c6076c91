package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Provider is a blocking token bucket shared by every request that calls one external
// provider. When the provider answers with a throttle, Throttle pauses all callers
// until the given time instead of letting each of them hit the limit again.
type Provider struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	retryAt time.Time
}

// NewProvider creates a Provider limiter. rps <= 0 means unlimited.
func NewProvider(rps float64, burst int) *Provider {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Provider{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a call may be made or ctx is done.
func (p *Provider) Wait(ctx context.Context) error {
	p.mu.Lock()
	retryAt := p.retryAt
	p.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return p.limiter.Wait(ctx)
}

// Throttle holds every caller back for d.
func (p *Provider) Throttle(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if until := time.Now().Add(d); until.After(p.retryAt) {
		p.retryAt = until
	}
}

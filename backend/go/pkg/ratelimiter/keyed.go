package ratelimiter

import (
	"sync"
	"time"
)

// Keyed keeps one TokenBucket per key, e.g. per user or client IP.
// Buckets that have refilled completely are dropped by Sweep.
type Keyed struct {
	rate     float64
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewKeyed creates a Keyed limiter where every key gets its own bucket.
func NewKeyed(rate float64, capacity int) *Keyed {
	return &Keyed{
		rate:     rate,
		capacity: capacity,
		now:      time.Now,
		buckets:  make(map[string]*TokenBucket),
	}
}

// Allow consumes a token from key's bucket.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	b, ok := k.buckets[key]
	if !ok {
		b = newTokenBucket(k.rate, k.capacity, k.now)
		k.buckets[key] = b
	}
	k.mu.Unlock()
	return b.Allow()
}

// For returns a RateLimiter bound to key.
func (k *Keyed) For(key string) RateLimiter {
	return keyedLimiter{k: k, key: key}
}

// Sweep removes buckets that are back at full capacity and returns how many were removed.
func (k *Keyed) Sweep() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	removed := 0
	for key, b := range k.buckets {
		if b.full() {
			delete(k.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

type keyedLimiter struct {
	k   *Keyed
	key string
}

func (l keyedLimiter) Allow() bool { return l.k.Allow(l.key) }

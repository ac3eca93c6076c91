// Package ratelimiter holds the token buckets used at both edges of the service:
// per-client buckets in front of the HTTP API, and one shared blocking limiter per
// external model provider.
package ratelimiter

// RateLimiter is a non-blocking limiter.
type RateLimiter interface {
	// Allow returns true if the request is allowed, otherwise returns false.
	Allow() bool
}

package httpmiddleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/pkg/circuitbreaker"
	"brandbook/backend/go/pkg/logger"
	"brandbook/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// KeyFunc picks the rate limit key for a request.
type KeyFunc func(c *gin.Context) string

// ClientKey limits per authenticated user when one is set under "userID", else per client IP.
func ClientKey(c *gin.Context) string {
	if uid := c.GetString("userID"); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.ClientIP()
}

// RateLimit rejects requests with 429 once the caller's bucket is empty.
func RateLimit(limiter *ratelimiter.Keyed, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests", "retryable": true})
			return
		}
		c.Next()
	}
}

// CircuitBreak trips on handler responses >= 500 and answers 503 while the circuit is open.
func CircuitBreak(breaker circuitbreaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := breaker.Execute(func() error {
			c.Next()
			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				return fmt.Errorf("server error: status code %d", status)
			}
			return nil
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":     "Service Unavailable: Circuit Breaker is open",
				"retryable": true,
			})
		}
	}
}

// RequestLogger writes one structured line per request. Headers are never logged,
// so per-call provider keys stay out of the log.
func RequestLogger(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		info := models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.FullPath(),
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Status:     c.Writer.Status(),
			LatencyMS:  time.Since(start).Milliseconds(),
		}
		if info.Path == "" {
			info.Path = c.Request.URL.Path
		}
		log := logger.New(serviceName, c.GetString("traceID"), c.GetString("userID")).WithRequest(info)
		switch {
		case info.Status >= http.StatusInternalServerError:
			log.Error("request failed")
		case info.Status >= http.StatusBadRequest:
			log.Warn("request rejected")
		default:
			log.Info("request served")
		}
	}
}

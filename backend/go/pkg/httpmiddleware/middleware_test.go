package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"brandbook/backend/go/pkg/circuitbreaker"
	"brandbook/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(ratelimiter.NewKeyed(0.001, 2), ClientKey))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "/").Code, "request %d", i+1)
	}
	w := serve(r, "/")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "retryable")
}

func TestRateLimiterKeysByUser(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", c.Query("u"))
		c.Next()
	})
	r.Use(RateLimit(ratelimiter.NewKeyed(0.001, 1), ClientKey))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "/?u=alice").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/?u=alice").Code)
	assert.Equal(t, http.StatusOK, serve(r, "/?u=bob").Code)
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CircuitBreak(circuitbreaker.New(circuitbreaker.Settings{FailureThreshold: 2, Timeout: 10 * time.Second})))
	r.GET("/fail", func(c *gin.Context) {
		c.String(http.StatusInternalServerError, "Internal Server Error")
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusInternalServerError, serve(r, "/fail").Code)
	}
	w := serve(r, "/fail")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Circuit Breaker is open")
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger("test"))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	w := serve(r, "/ok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fine", w.Body.String())
}

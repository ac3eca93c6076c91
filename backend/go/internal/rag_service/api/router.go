package api

import (
	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/pkg/circuitbreaker"
	"brandbook/backend/go/pkg/httpmiddleware"
	"brandbook/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

const serviceName = "RAGService"

// RouterDeps carries optional middleware state shared with main, e.g. so the
// per-client limiter can be swept periodically.
type RouterDeps struct {
	Limiter *ratelimiter.Keyed
	Breaker circuitbreaker.CircuitBreaker
}

// SetupRouter builds the gin engine with every /api/v1 route.
func SetupRouter(h *Handler, cfg *config.AppConfig, deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery(), RequestID(), httpmiddleware.RequestLogger(serviceName))
	if deps.Breaker != nil {
		r.Use(httpmiddleware.CircuitBreak(deps.Breaker))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health)

	authed := v1.Group("")
	authed.Use(Auth(cfg.Auth))
	if deps.Limiter != nil {
		authed.Use(httpmiddleware.RateLimit(deps.Limiter, httpmiddleware.ClientKey))
	}
	{
		authed.POST("/playbooks", h.UploadPlaybook)
		authed.GET("/playbooks", h.ListPlaybooks)
		authed.GET("/playbooks/:id", h.GetPlaybook)
		authed.DELETE("/playbooks/:id", h.DeletePlaybook)
		authed.GET("/playbooks/:id/summary", h.SummarizePlaybook)
		authed.POST("/ask", h.Ask)
		authed.GET("/stats", h.Stats)
	}
	return r
}

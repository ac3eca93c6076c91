package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/internal/rag_service/api"
	"brandbook/backend/go/internal/rag_service/rag/loaders"
	"brandbook/backend/go/pkg/circuitbreaker"
	pkghttp "brandbook/backend/go/pkg/http"
	"brandbook/backend/go/pkg/logger"
	"brandbook/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const sweepInterval = 5 * time.Minute

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	path := os.Getenv("RAG_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New("RAGService", "", "")
	appLogger.Info(fmt.Sprintf("Starting %s %s (%s)", cfg.App.Name, cfg.App.Version, cfg.App.Environment))

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := loaders.SetLicenseKey(cfg.Upload.UnidocLicenseKey); err != nil {
		appLogger.Warn(fmt.Sprintf("Failed to set unioffice license, falling back to raw OOXML parsing: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to initialize: %v", err))
	}
	defer app.close()

	var deps api.RouterDeps
	if cfg.Middleware.RateLimiter.Enabled {
		tb := cfg.Middleware.RateLimiter.TokenBucket
		deps.Limiter = ratelimiter.NewKeyed(tb.Rate, tb.Capacity)
		go sweep(ctx, deps.Limiter)
	}
	if cb := cfg.Middleware.CircuitBreaker; cb.Enabled {
		deps.Breaker = circuitbreaker.New(circuitbreaker.Settings{
			Name:             "http",
			FailureThreshold: cb.FailureThreshold,
			SuccessThreshold: cb.SuccessThreshold,
			Timeout:          config.Duration(cb.Timeout, 30*time.Second),
			OnStateChange:    logStateChange(appLogger),
		})
	}

	router := api.SetupRouter(api.NewHandler(app.service, cfg.Upload.MaxBytes), cfg, deps)
	server := pkghttp.NewServer(cfg, router, pkghttp.WithLogger(appLogger))
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error(fmt.Sprintf("Server stopped: %v", err))
		return
	}
	appLogger.Info("Servers gracefully stopped")
}

// sweep drops idle per-client buckets so the limiter does not grow without bound.
func sweep(ctx context.Context, l *ratelimiter.Keyed) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

func logStateChange(l *logger.Logger) func(name string, from, to circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		l.WithFields(map[string]interface{}{"breaker": name, "from": from.String(), "to": to.String()}).
			Warn("Circuit breaker state changed")
	}
}

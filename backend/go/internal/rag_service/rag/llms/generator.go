package llms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/internal/llm"
	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/pkg/circuitbreaker"
	"brandbook/backend/go/pkg/logger"
	"brandbook/backend/go/pkg/ratelimiter"

	"github.com/cenkalti/backoff/v5"
)

// Options configures a Generator.
type Options struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// RetryDelay is the pause before the single retry of a transient failure.
	RetryDelay time.Duration
}

// OptionsFromConfig converts the llm section of the config.
func OptionsFromConfig(cfg config.LLMConfig) Options {
	return Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     config.Duration(cfg.Timeout, 60*time.Second),
		RetryDelay:  time.Second,
	}
}

// Generator calls a generation provider under a shared rate limiter, a circuit
// breaker and a per-call timeout. Transient failures are retried once.
type Generator struct {
	model       llm.LLM
	defaultCred models.Credential
	limiter     *ratelimiter.Provider
	breaker     circuitbreaker.CircuitBreaker
	opts        Options
	log         *logger.Logger
}

// NewGenerator creates a Generator. limiter and breaker may be nil.
func NewGenerator(model llm.LLM, defaultCred models.Credential, limiter *ratelimiter.Provider, breaker circuitbreaker.CircuitBreaker, opts Options) *Generator {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if limiter == nil {
		limiter = ratelimiter.NewProvider(0, 0)
	}
	return &Generator{
		model:       model,
		defaultCred: defaultCred,
		limiter:     limiter,
		breaker:     breaker,
		opts:        opts,
		log:         logger.New("Generator", "", ""),
	}
}

// Provider returns the provider name.
func (g *Generator) Provider() string { return g.model.Provider() }

// Model returns the model name.
func (g *Generator) Model() string { return g.model.Model() }

// Generate sends req and returns the response text with its token usage. When the
// provider does not report usage, or the call fails or is cancelled, the prompt
// size is estimated so that the attempt can still be accounted for.
func (g *Generator) Generate(ctx context.Context, cred models.Credential, req models.GenerateContentRequest) (string, models.TokenUsage, error) {
	cred = cred.Resolve(g.defaultCred)
	if req.Temperature == 0 {
		req.Temperature = g.opts.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.opts.MaxTokens
	}
	estimate := estimatePrompt(req)

	var usage models.TokenUsage
	attempt := 0
	op := func() (*models.GenerateContentResponse, error) {
		attempt++
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()

		resp, err := circuitbreaker.Do(g.breaker, func() (*models.GenerateContentResponse, error) {
			return g.model.GenerateContent(callCtx, cred, &req)
		})
		if err == nil {
			return resp, nil
		}
		// The request may have been billed even though it failed.
		usage = usage.Add(models.TokenUsage{PromptTokens: estimate, Estimated: true})
		if ctx.Err() != nil || errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("generation timed out after %s: %w", g.opts.Timeout, err)
		}
		var pe *models.ProviderError
		if errors.As(err, &pe) {
			if pe.Throttled() && pe.RetryAfter > 0 {
				g.limiter.Throttle(pe.RetryAfter)
			}
			if pe.Transient() {
				return nil, err
			}
		}
		return nil, backoff.Permanent(err)
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(g.opts.RetryDelay)),
		backoff.WithMaxTries(2),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.log.Warn(fmt.Sprintf("Generation attempt %d failed, retrying in %s: %v", attempt, next, err))
		}),
	)
	if err != nil {
		kind := ragerr.KindGenerationUnavailable
		if _, ok := models.ProviderRejection(err); ok {
			kind = ragerr.KindProviderRejected
		}
		g.log.WithError(models.ErrorInfo{
			Message:   err.Error(),
			Kind:      string(kind),
			Retryable: kind.Retryable(),
		}).Error(fmt.Sprintf("Generation failed after %d attempt(s)", attempt))
		return "", usage, ragerr.New(kind, "generate", err)
	}

	got := resp.Usage
	if got.Total() == 0 {
		text := resp.Text()
		got = models.TokenUsage{
			PromptTokens:     estimate,
			CompletionTokens: models.EstimateTokens(text),
			Estimated:        true,
		}
	}
	return resp.Text(), usage.Add(got), nil
}

func estimatePrompt(req models.GenerateContentRequest) int {
	n := models.EstimateTokens(req.System)
	for _, c := range req.Content {
		n += models.EstimateTokens(c.Text())
	}
	return n
}

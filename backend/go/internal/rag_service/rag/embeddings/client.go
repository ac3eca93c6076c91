package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/internal/embedding"
	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/pkg/circuitbreaker"
	"brandbook/backend/go/pkg/logger"
	"brandbook/backend/go/pkg/ratelimiter"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
)

// Options configures a Client.
type Options struct {
	BatchSize      int
	MaxBatchBytes  int
	Concurrency    int
	Timeout        time.Duration
	MaxRetries     uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// OptionsFromConfig converts the embedding section of the config.
func OptionsFromConfig(cfg config.EmbeddingConfig) Options {
	return Options{
		BatchSize:      cfg.BatchSize,
		MaxBatchBytes:  cfg.MaxBatchBytes,
		Concurrency:    cfg.Concurrency,
		Timeout:        config.Duration(cfg.Timeout, 30*time.Second),
		MaxRetries:     uint(cfg.MaxRetries),
		InitialBackoff: config.Duration(cfg.InitialBackoff, 500*time.Millisecond),
		MaxBackoff:     config.Duration(cfg.MaxBackoff, 8*time.Second),
	}
}

// Client turns texts into vectors through an embedding provider. It batches inputs,
// retries transient failures with exponential backoff and shares one rate limiter
// across all callers. It is safe for concurrent use.
type Client struct {
	model       embedding.Embedding
	defaultCred models.Credential
	limiter     *ratelimiter.Provider
	breaker     circuitbreaker.CircuitBreaker
	opts        Options
	log         *logger.Logger
}

// NewClient creates a Client. limiter and breaker may be nil.
func NewClient(model embedding.Embedding, defaultCred models.Credential, limiter *ratelimiter.Provider, breaker circuitbreaker.CircuitBreaker, opts Options) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	if limiter == nil {
		limiter = ratelimiter.NewProvider(0, 0)
	}
	return &Client{
		model:       model,
		defaultCred: defaultCred,
		limiter:     limiter,
		breaker:     breaker,
		opts:        opts,
		log:         logger.New("EmbeddingClient", "", ""),
	}
}

// Provider returns the provider name.
func (c *Client) Provider() string { return c.model.Provider() }

// Model returns the model name.
func (c *Client) Model() string { return c.model.Model() }

// Embed returns one vector per text in input order. cred overrides the default
// credential when non-empty. Usage is returned even when err is non-nil so that
// billed calls can still be accounted for.
func (c *Client) Embed(ctx context.Context, cred models.Credential, texts []string) ([][]float32, models.TokenUsage, error) {
	if len(texts) == 0 {
		return nil, models.TokenUsage{}, nil
	}
	cred = cred.Resolve(c.defaultCred)

	batches := splitBatches(texts, c.opts.BatchSize, c.opts.MaxBatchBytes)
	c.log.Debug(fmt.Sprintf("Embedding %d texts in %d batches", len(texts), len(batches)))

	vectors := make([][]float32, len(texts))
	var (
		mu    sync.Mutex
		usage models.TokenUsage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for _, b := range batches {
		g.Go(func() error {
			batch := texts[b.start:b.end]
			res, err := c.embedBatch(gctx, cred, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				usage = usage.Add(models.TokenUsage{EmbeddingTokens: models.EstimateTokens(batch...), Estimated: true})
				return err
			}
			tokens := res.Tokens
			if tokens == 0 {
				usage.Estimated = true
				tokens = models.EstimateTokens(batch...)
			}
			usage.EmbeddingTokens += tokens
			copy(vectors[b.start:b.end], res.Vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		kind := ragerr.KindEmbeddingUnavailable
		if _, ok := models.ProviderRejection(err); ok {
			kind = ragerr.KindProviderRejected
		}
		c.log.WithError(models.ErrorInfo{
			Message:   err.Error(),
			Kind:      string(kind),
			Retryable: kind.Retryable(),
		}).Error(fmt.Sprintf("Embedding %d texts failed", len(texts)))
		return nil, usage, ragerr.New(kind, "embed", err)
	}
	return vectors, usage, nil
}

// EmbedQuery embeds a single text.
func (c *Client) EmbedQuery(ctx context.Context, cred models.Credential, text string) ([]float32, models.TokenUsage, error) {
	vectors, usage, err := c.Embed(ctx, cred, []string{text})
	if err != nil {
		return nil, usage, err
	}
	return vectors[0], usage, nil
}

// embedBatch calls the provider for one batch with retries.
func (c *Client) embedBatch(ctx context.Context, cred models.Credential, texts []string) (*embedding.Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.InitialBackoff
	bo.MaxInterval = c.opts.MaxBackoff

	attempt := 0
	op := func() (*embedding.Result, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		res, err := circuitbreaker.Do(c.breaker, func() (*embedding.Result, error) {
			return c.model.EmbedBatch(callCtx, cred, texts)
		})
		if err == nil {
			return res, validate(res, len(texts))
		}
		if ctx.Err() != nil || errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// Per-attempt timeout; the caller's context is still alive.
			return nil, fmt.Errorf("attempt %d timed out after %s: %w", attempt, c.opts.Timeout, err)
		}
		var pe *models.ProviderError
		if errors.As(err, &pe) {
			if pe.Throttled() {
				wait := pe.RetryAfter
				if wait <= 0 {
					wait = c.opts.InitialBackoff
				}
				c.limiter.Throttle(wait)
			}
			if pe.Transient() {
				return nil, err
			}
		}
		return nil, backoff.Permanent(err)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.opts.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn(fmt.Sprintf("Embedding batch of %d failed (attempt %d), retrying in %s: %v", len(texts), attempt, next, err))
		}),
	)
}

func validate(res *embedding.Result, n int) error {
	if res == nil || len(res.Vectors) != n {
		return backoff.Permanent(fmt.Errorf("provider returned a malformed batch for %d inputs", n))
	}
	for i, v := range res.Vectors {
		if len(v) == 0 {
			return backoff.Permanent(fmt.Errorf("provider returned an empty vector at position %d", i))
		}
	}
	return nil
}

type batchRange struct{ start, end int }

// splitBatches groups consecutive texts so no batch exceeds maxItems items or
// maxBytes bytes. A single text larger than maxBytes gets a batch of its own.
func splitBatches(texts []string, maxItems, maxBytes int) []batchRange {
	var out []batchRange
	start, size := 0, 0
	for i, t := range texts {
		n := len(t)
		full := i-start >= maxItems || (maxBytes > 0 && size+n > maxBytes && i > start)
		if full {
			out = append(out, batchRange{start, i})
			start, size = i, 0
		}
		size += n
	}
	return append(out, batchRange{start, len(texts)})
}

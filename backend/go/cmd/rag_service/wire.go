package main

import (
	"context"
	"fmt"
	"time"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/internal/database/kafka"
	"brandbook/backend/go/internal/database/milvus"
	"brandbook/backend/go/internal/database/minio"
	"brandbook/backend/go/internal/database/mongo"
	"brandbook/backend/go/internal/database/mysql"
	"brandbook/backend/go/internal/database/redis"
	"brandbook/backend/go/internal/embedding"
	"brandbook/backend/go/internal/llm"
	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/embeddings"
	"brandbook/backend/go/internal/rag_service/rag/interfaces"
	"brandbook/backend/go/internal/rag_service/rag/llms"
	"brandbook/backend/go/internal/rag_service/rag/loaders"
	"brandbook/backend/go/internal/rag_service/rag/pipeline"
	"brandbook/backend/go/internal/rag_service/rag/splitters"
	"brandbook/backend/go/internal/rag_service/rag/storages/filestore"
	"brandbook/backend/go/internal/rag_service/rag/storages/registry"
	"brandbook/backend/go/internal/rag_service/rag/storages/sessions"
	"brandbook/backend/go/internal/rag_service/rag/storages/usage"
	"brandbook/backend/go/internal/rag_service/rag/storages/vectorstore"
	"brandbook/backend/go/internal/rag_service/service"
	"brandbook/backend/go/pkg/circuitbreaker"
	pkghttp "brandbook/backend/go/pkg/http"
	"brandbook/backend/go/pkg/logger"
	"brandbook/backend/go/pkg/ratelimiter"
)

const sessionTTL = 24 * time.Hour

// app holds the service and the clean-up of every client opened for it.
type app struct {
	service *service.Service
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build connects the configured backends and assembles the service.
func build(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (*app, error) {
	a := &app{}
	probes := map[string]service.Probe{}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	embedder, embInfo, err := newEmbedder(cfg, log)
	if err != nil {
		return fail(err)
	}
	generator, genInfo, err := newGenerator(cfg, log)
	if err != nil {
		return fail(err)
	}

	index, err := newIndex(ctx, cfg, a, probes)
	if err != nil {
		return fail(err)
	}

	count, err := splitters.NewCounter(cfg.Chunking.Tokenizer)
	if err != nil {
		return fail(err)
	}
	chunker := splitters.NewStructuralSplitter(splitters.Options{
		TargetTokens:  cfg.Chunking.TargetTokens,
		OverlapTokens: cfg.Chunking.OverlapTokens,
		MinTokens:     cfg.Chunking.MinTokens,
		MaxTokens:     cfg.Chunking.MaxTokens,
		Count:         count,
	})

	qa := pipeline.NewQAPipeline(generator, pipeline.SynthesisOptionsFromConfig(cfg.Retrieval), nil)
	deps := service.Deps{
		Extractor:  loaders.NewRegistry(),
		Index:      index,
		Indexer:    pipeline.NewIndexingPipeline(chunker, embedder, index, qa, nil),
		Retriever:  pipeline.NewRetrievalPipeline(embedder, index, pipeline.RetrievalOptionsFromConfig(cfg.Retrieval), nil),
		QA:         qa,
		Counters:   usage.NewCounters(),
		Embedding:  embInfo,
		Generation: genInfo,
		Probes:     probes,
	}

	if deps.Registry, err = newRegistry(ctx, cfg, a, probes); err != nil {
		return fail(err)
	}
	if deps.Files, err = newFileStore(ctx, cfg, a, probes); err != nil {
		return fail(err)
	}
	if deps.Sessions, err = newSessions(ctx, cfg, a, probes); err != nil {
		return fail(err)
	}
	recorders, err := newUsageRecorders(ctx, cfg, a, probes)
	if err != nil {
		return fail(err)
	}
	deps.Usage = append(usage.Fanout{deps.Counters}, recorders...)

	svc, err := service.New(deps, service.Options{
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxBytes:          cfg.Upload.MaxBytes,
		HistoryTurns:      cfg.Retrieval.HistoryTurns,
		TopK:              cfg.Retrieval.TopK,
		SummaryCacheSize:  cfg.Retrieval.SummaryCacheSize,
	}, log)
	if err != nil {
		return fail(err)
	}
	a.service = svc
	log.WithFields(map[string]interface{}{
		"vector_store": index.Backend(),
		"registry":     cfg.Storage.Registry,
		"files":        cfg.Storage.Files,
		"sessions":     cfg.Storage.Sessions,
		"embedding":    embInfo.Provider + "/" + embInfo.Model,
		"generation":   genInfo.Provider + "/" + genInfo.Model,
	}).Info("RAG service assembled")
	return a, nil
}

func providerBreaker(cfg *config.AppConfig, name string, log *logger.Logger) circuitbreaker.CircuitBreaker {
	cb := cfg.Middleware.CircuitBreaker
	if !cb.Enabled {
		return nil
	}
	return circuitbreaker.New(circuitbreaker.Settings{
		Name:             name,
		FailureThreshold: cb.FailureThreshold,
		SuccessThreshold: cb.SuccessThreshold,
		Timeout:          config.Duration(cb.Timeout, 30*time.Second),
		IsSuccessful:     providerHealthy,
		OnStateChange:    logStateChange(log),
	})
}

// providerHealthy counts a rejected request as a healthy provider round trip.
func providerHealthy(err error) bool {
	_, rejected := models.ProviderRejection(err)
	return err == nil || rejected
}

func newEmbedder(cfg *config.AppConfig, log *logger.Logger) (*embeddings.Client, service.ModelInfo, error) {
	ec := cfg.Embedding
	hc := pkghttp.NewClient(config.Duration(ec.Timeout, 30*time.Second), nil)
	model, err := embedding.NewEmdModel(ec.Provider, ec.Model, ec.BaseURL, hc)
	if err != nil {
		return nil, service.ModelInfo{}, err
	}
	client := embeddings.NewClient(model,
		models.NewCredential(ec.APIKey),
		ratelimiter.NewProvider(ec.RateLimit.RPS, ec.RateLimit.Burst),
		providerBreaker(cfg, "embedding", log),
		embeddings.OptionsFromConfig(ec))
	return client, service.ModelInfo{Provider: model.Provider(), Model: ec.Model}, nil
}

func newGenerator(cfg *config.AppConfig, log *logger.Logger) (*llms.Generator, service.ModelInfo, error) {
	model, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, service.ModelInfo{}, err
	}
	gen := llms.NewGenerator(model,
		models.NewCredential(cfg.LLM.APIKey),
		ratelimiter.NewProvider(cfg.LLM.RateLimit.RPS, cfg.LLM.RateLimit.Burst),
		providerBreaker(cfg, "generation", log),
		llms.OptionsFromConfig(cfg.LLM))
	return gen, service.ModelInfo{Provider: model.Provider(), Model: model.Model()}, nil
}

func newIndex(ctx context.Context, cfg *config.AppConfig, a *app, probes map[string]service.Probe) (interfaces.VectorIndex, error) {
	vc := cfg.VectorIndex
	switch vc.Backend {
	case vectorstore.BackendChromem:
		return vectorstore.NewChromemStore(ctx, vc.Path, vc.Collection, vc.Dimension)
	case vectorstore.BackendMilvus:
		mc, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
		if err != nil {
			return nil, fmt.Errorf("connect milvus: %w", err)
		}
		a.closers = append(a.closers, mc.Close)
		probes["milvus"] = mc.HealthCheck
		return vectorstore.NewMilvusStore(ctx, mc, cfg.Databases.Milvus.CollectionName, vc.Dimension)
	default:
		return vectorstore.NewMemoryStore(vc.Dimension), nil
	}
}

func newRegistry(ctx context.Context, cfg *config.AppConfig, a *app, probes map[string]service.Probe) (registry.Store, error) {
	if cfg.Storage.Registry != "mysql" {
		return registry.NewMemoryStore(), nil
	}
	db, err := mysql.GetDB(ctx, &cfg.Databases.MySQL)
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	a.closers = append(a.closers, func() { _ = mysql.Close() })
	probes["mysql"] = mysql.HealthCheck
	return registry.NewGormStore(ctx, db)
}

func newFileStore(ctx context.Context, cfg *config.AppConfig, a *app, probes map[string]service.Probe) (filestore.Store, error) {
	if cfg.Storage.Files != "minio" {
		return filestore.NewMemoryStore(), nil
	}
	mc, err := minio.GetClient(ctx, &cfg.Databases.MinIO)
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}
	bucket := cfg.Databases.MinIO.Bucket
	probes["minio"] = func(ctx context.Context) error { return minio.HealthCheck(ctx, bucket) }
	return filestore.NewMinioStore(mc, bucket), nil
}

func newSessions(ctx context.Context, cfg *config.AppConfig, a *app, probes map[string]service.Probe) (sessions.Store, error) {
	if cfg.Storage.Sessions != "redis" {
		return sessions.NewMemoryStore(cfg.Retrieval.HistoryTurns), nil
	}
	rc, err := redis.GetClient(ctx, &cfg.Databases.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = redis.Close() })
	probes["redis"] = redis.HealthCheck
	return sessions.NewRedisStore(rc, cfg.Retrieval.HistoryTurns, sessionTTL), nil
}

// newUsageRecorders returns the durable usage sinks. The in-process counters are added by build.
func newUsageRecorders(ctx context.Context, cfg *config.AppConfig, a *app, probes map[string]service.Probe) ([]usage.Recorder, error) {
	var out []usage.Recorder
	if cfg.Storage.QueryLog == "mongodb" {
		mc, err := mongo.GetClient(ctx, &cfg.Databases.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongo.Close(ctx)
		})
		probes["mongodb"] = mongo.HealthCheck
		out = append(out, usage.NewMongoRecorder(mongo.Collection(mc, &cfg.Databases.MongoDB)))
	}
	if cfg.Storage.Usage == "kafka" {
		kc, err := kafka.GetClient(ctx, &cfg.Databases.Kafka)
		if err != nil {
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		a.closers = append(a.closers, func() { _ = kc.Close() })
		probes["kafka"] = kc.HealthCheck
		out = append(out, usage.NewStreamRecorder(kafka.NewUsagePublisher(kc)))
	}
	return out, nil
}

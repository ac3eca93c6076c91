// Package service composes extraction, the indexing and query pipelines and the
// storage collaborators into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/interfaces"
	"brandbook/backend/go/internal/rag_service/rag/pipeline"
	"brandbook/backend/go/internal/rag_service/rag/storages/filestore"
	"brandbook/backend/go/internal/rag_service/rag/storages/registry"
	"brandbook/backend/go/internal/rag_service/rag/storages/sessions"
	"brandbook/backend/go/internal/rag_service/rag/storages/usage"
	"brandbook/backend/go/pkg/logger"
	"brandbook/backend/go/pkg/util"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	cleanupTimeout = 10 * time.Second
	probeTimeout   = 3 * time.Second
	maxTopK        = 20
	keySections    = 5
)

// ModelInfo names the provider and model behind a pipeline stage, for usage events.
type ModelInfo struct {
	Provider string
	Model    string
}

// Probe checks one dependency. It must respect ctx.
type Probe func(ctx context.Context) error

// Options are the service-level policy knobs.
type Options struct {
	AllowedExtensions []string
	MaxBytes          int64
	HistoryTurns      int
	TopK              int
	SummaryCacheSize  int
}

// Deps are the collaborators the service is built from.
type Deps struct {
	Extractor  interfaces.Extractor
	Index      interfaces.VectorIndex
	Indexer    *pipeline.IndexingPipeline
	Retriever  *pipeline.RetrievalPipeline
	QA         *pipeline.QAPipeline
	Registry   registry.Store
	Files      filestore.Store
	Sessions   sessions.Store
	Usage      usage.Recorder
	Counters   *usage.Counters
	Embedding  ModelInfo
	Generation ModelInfo
	// Probes are extra health checks keyed by dependency name.
	Probes map[string]Probe
}

// summaryEntry is what the summary cache holds per document.
type summaryEntry struct {
	Summary     string
	KeySections []string
}

// Service is the playbook assistant.
type Service struct {
	deps      Deps
	opts      Options
	allowed   map[string]bool
	summaries *util.LRUCache[string, summaryEntry]
	log       *logger.Logger
	now       func() time.Time
}

// New validates deps and builds a Service.
func New(deps Deps, opts Options, log *logger.Logger) (*Service, error) {
	switch {
	case deps.Extractor == nil, deps.Index == nil, deps.Indexer == nil, deps.Retriever == nil, deps.QA == nil:
		return nil, errors.New("service: extractor, index and pipelines are required")
	case deps.Registry == nil, deps.Files == nil, deps.Sessions == nil:
		return nil, errors.New("service: registry, file store and session store are required")
	}
	if deps.Counters == nil {
		deps.Counters = usage.NewCounters()
		if deps.Usage != nil {
			deps.Usage = usage.Fanout{deps.Counters, deps.Usage}
		}
	}
	if deps.Usage == nil {
		deps.Usage = deps.Counters
	}
	if opts.SummaryCacheSize <= 0 {
		opts.SummaryCacheSize = 128
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	cache, err := util.NewLRU[string, summaryEntry](opts.SummaryCacheSize, 0)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	if log == nil {
		log = logger.New("RAGService", "", "")
	}
	return &Service{deps: deps, opts: opts, allowed: allowed, summaries: cache, log: log, now: time.Now}, nil
}

// List returns the documents uploaded by owner, or every document when owner is empty.
func (s *Service) List(ctx context.Context, owner string) ([]*models.RagDocument, error) {
	return s.deps.Registry.List(ctx, owner)
}

// Get returns one document record.
func (s *Service) Get(ctx context.Context, id string) (*models.RagDocument, error) {
	return s.deps.Registry.Get(ctx, "", id)
}

// Delete removes a document's chunks, stored file, registry row and cached summary.
// Only the uploader may delete a document; for anyone else it does not exist.
// An empty owner skips the ownership check.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	log := s.log.WithFields(map[string]interface{}{"document_id": id, "user_id": owner})
	if _, err := s.deps.Registry.Get(ctx, owner, id); err != nil {
		return err
	}
	if err := s.deps.Indexer.Remove(ctx, id); err != nil {
		log.Error(fmt.Sprintf("Failed to remove chunks: %v", err))
		return err
	}
	if err := s.deps.Files.Delete(ctx, id); err != nil {
		log.Warn(fmt.Sprintf("Failed to remove stored file: %v", err))
	}
	if err := s.deps.Registry.Delete(ctx, owner, id); err != nil {
		return err
	}
	s.summaries.Remove(id)
	log.Info("Document deleted")
	return nil
}

// HealthReport is the result of Health.
type HealthReport struct {
	Status         string            `json:"status"`
	VectorBackend  string            `json:"vector_store"`
	TotalDocuments int               `json:"total_documents"`
	TotalChunks    int               `json:"total_chunks"`
	Dependencies   map[string]string `json:"dependencies"`
}

// Health probes the index, the registry and every configured dependency
// concurrently. Any failing probe makes the status "degraded".
func (s *Service) Health(ctx context.Context) HealthReport {
	report := HealthReport{Status: "healthy", VectorBackend: s.deps.Index.Backend(), Dependencies: map[string]string{}}
	names := make([]string, 0, len(s.deps.Probes)+2)
	probes := make([]Probe, 0, len(s.deps.Probes)+2)

	names = append(names, "vector_index")
	probes = append(probes, func(ctx context.Context) error {
		n, err := s.deps.Index.Count(ctx)
		report.TotalChunks = n
		return err
	})
	names = append(names, "registry")
	probes = append(probes, func(ctx context.Context) error {
		n, err := s.deps.Registry.Count(ctx)
		report.TotalDocuments = n
		return err
	})
	for name, p := range s.deps.Probes {
		names = append(names, name)
		probes = append(probes, p)
	}

	errs := make([]error, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			errs[i] = p(pctx)
			return nil
		})
	}
	_ = g.Wait()

	for i, name := range names {
		if err := errs[i]; err != nil {
			report.Status = "degraded"
			report.Dependencies[name] = err.Error()
			continue
		}
		report.Dependencies[name] = "ok"
	}
	return report
}

// Stats is the result of Stats.
type Stats struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	EmbeddingTokens  int  `json:"embedding_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated"`
	Questions        int  `json:"total_questions"`
	Documents        int  `json:"total_documents"`
	Chunks           int  `json:"total_chunks"`
}

// Stats reports cumulative token usage since start-up plus current totals.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	totals := s.deps.Counters.Snapshot()
	docs, err := s.deps.Registry.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	chunks, err := s.deps.Index.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		PromptTokens:     totals.Usage.PromptTokens,
		CompletionTokens: totals.Usage.CompletionTokens,
		EmbeddingTokens:  totals.Usage.EmbeddingTokens,
		TotalTokens:      totals.Usage.Total(),
		Estimated:        totals.Usage.Estimated,
		Questions:        totals.Questions,
		Documents:        docs,
		Chunks:           chunks,
	}, nil
}

// record sends a usage event. Recording never fails the operation.
func (s *Service) record(ctx context.Context, event models.UsageEvent, err error) {
	event.ID = uuid.NewString()
	event.Outcome = usage.OutcomeOf(err)
	event.Timestamp = s.now().UTC()
	if rerr := s.deps.Usage.Record(context.WithoutCancel(ctx), event); rerr != nil {
		s.log.WithField("operation", string(event.Operation)).Warn(fmt.Sprintf("Failed to record usage: %v", rerr))
	}
}

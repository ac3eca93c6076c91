package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/loaders"
	"brandbook/backend/go/internal/rag_service/rag/pipeline"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
	"brandbook/backend/go/internal/rag_service/rag/splitters"
	"brandbook/backend/go/internal/rag_service/rag/storages/filestore"
	"brandbook/backend/go/internal/rag_service/rag/storages/registry"
	"brandbook/backend/go/internal/rag_service/rag/storages/sessions"
	"brandbook/backend/go/internal/rag_service/rag/storages/usage"
	"brandbook/backend/go/internal/rag_service/rag/storages/vectorstore"
	"brandbook/backend/go/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 128

type wordEmbedder struct {
	mu  sync.Mutex
	err error
}

func (e *wordEmbedder) Embed(_ context.Context, _ models.Credential, texts []string) ([][]float32, models.TokenUsage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	spent := models.TokenUsage{EmbeddingTokens: models.EstimateTokens(texts...)}
	if e.err != nil {
		return nil, spent, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			f := fnv.New32a()
			_, _ = f.Write([]byte(strings.Trim(w, ".,?!")))
			v[f.Sum32()%dim]++
		}
		v[0] += 0.01
		out[i] = v
	}
	return out, spent, nil
}

type cannedGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (g *cannedGenerator) Generate(context.Context, models.Credential, models.GenerateContentRequest) (string, models.TokenUsage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	spent := models.TokenUsage{PromptTokens: 100, CompletionTokens: 20}
	if g.err != nil {
		return "", spent, g.err
	}
	return g.reply, spent, nil
}

type fixture struct {
	svc      *Service
	index    *vectorstore.MemoryStore
	registry *registry.MemoryStore
	files    *filestore.MemoryStore
	sessions *sessions.MemoryStore
	counters *usage.Counters
	embedder *wordEmbedder
	gen      *cannedGenerator
}

const answerJSON = `{"answer":"Keep clear space of 2x the logo height.","confidence":0.9,"cited_passages":[1],"insufficient_evidence":false,"follow_up_questions":["What about favicons?"]}`

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		index:    vectorstore.NewMemoryStore(dim),
		registry: registry.NewMemoryStore(),
		files:    filestore.NewMemoryStore(),
		sessions: sessions.NewMemoryStore(3),
		counters: usage.NewCounters(),
		embedder: &wordEmbedder{},
		gen:      &cannedGenerator{reply: answerJSON},
	}
	log := logger.Nop()
	chunker := splitters.NewStructuralSplitter(splitters.Options{TargetTokens: 30, OverlapTokens: 3, MinTokens: 3, MaxTokens: 50})
	qa := pipeline.NewQAPipeline(f.gen, pipeline.SynthesisOptions{HistoryTurns: 3}, log)
	svc, err := New(Deps{
		Extractor:  loaders.NewRegistry(),
		Index:      f.index,
		Indexer:    pipeline.NewIndexingPipeline(chunker, f.embedder, f.index, qa, log),
		Retriever:  pipeline.NewRetrievalPipeline(f.embedder, f.index, pipeline.RetrievalOptions{TopK: 5, MinScore: 0}, log),
		QA:         qa,
		Registry:   f.registry,
		Files:      f.files,
		Sessions:   f.sessions,
		Usage:      f.counters,
		Counters:   f.counters,
		Embedding:  ModelInfo{Provider: "fake", Model: "words"},
		Generation: ModelInfo{Provider: "fake", Model: "canned"},
	}, Options{AllowedExtensions: []string{"txt", "md", "pdf"}, MaxBytes: 4096, HistoryTurns: 3}, log)
	require.NoError(t, err)
	f.svc = svc
	return f
}

const guide = `Brand colors. Our primary palette is ocean blue, sand beige and charcoal.

Logo clear space. Always keep a minimum clear space around the logo equal to 2x the logo height.

Typography. Headlines use Inter Bold and body copy uses Source Serif.`

func (f *fixture) upload(t *testing.T, owner string) *models.RagDocument {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), models.Credential{}, owner, "brand guide.txt", []byte(guide))
	require.NoError(t, err)
	return res.Document
}

func TestUploadIndexesDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "alice")

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "brand guide.txt", doc.Filename)
	assert.Equal(t, "txt", doc.FileType)
	assert.Greater(t, doc.ChunkCount, 0)

	stored, err := f.registry.Get(context.Background(), "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkCount, stored.ChunkCount)
	n, _ := f.index.Count(context.Background())
	assert.Equal(t, doc.ChunkCount, n)
	assert.Equal(t, 1, f.files.Len())
	assert.Equal(t, 1, f.counters.Snapshot().Ingests)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := map[string]struct {
		name string
		data []byte
	}{
		"extension": {"deck.exe", []byte("MZ")},
		"no stem":   {"../.txt", []byte("hello")},
		"empty":     {"notes.txt", nil},
		"too large": {"notes.txt", []byte(strings.Repeat("a", 4097))},
		"no ext":    {"README", []byte("hello")},
		"traversal": {"../../etc/passwd", []byte("root")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Upload(ctx, models.Credential{}, "alice", tc.name, tc.data)
			assert.True(t, errors.Is(err, ragerr.ErrInvalidInput), "got %v", err)
		})
	}
	n, _ := f.registry.Count(ctx)
	assert.Zero(t, n)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "guide.pdf", SanitizeFilename(`C:\Users\me\guide.pdf`))
	assert.Equal(t, "Brand Book v2.pdf", SanitizeFilename("Brand Book (v2)!.pdf"))
	assert.Equal(t, "Guía_marca.pdf", SanitizeFilename("Guía_marca.pdf"))
	long := SanitizeFilename(strings.Repeat("x", 150) + ".pptx")
	assert.Equal(t, strings.Repeat("x", 100)+".pptx", long)
	assert.Equal(t, "", SanitizeFilename(""))
}

func TestUploadFailureRemovesEverything(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding", func(t *testing.T) {
		f := newFixture(t)
		f.embedder.err = ragerr.Newf(ragerr.KindEmbeddingUnavailable, "embed", "provider down")
		_, err := f.svc.Upload(ctx, models.Credential{}, "alice", "guide.txt", []byte(guide))
		assert.True(t, ragerr.IsRetryable(err))
		f.assertEmpty(t)
		snap := f.counters.Snapshot()
		assert.Equal(t, 1, snap.Failures, "spend is recorded for failed ingests")
		assert.Greater(t, snap.Usage.EmbeddingTokens, 0)
	})

	t.Run("extraction", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Upload(ctx, models.Credential{}, "alice", "guide.pdf", []byte("this is not a pdf"))
		assert.True(t, errors.Is(err, ragerr.ErrExtractionFailed), "got %v", err)
		f.assertEmpty(t)
	})
}

func (f *fixture) assertEmpty(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	docs, _ := f.registry.Count(ctx)
	chunks, _ := f.index.Count(ctx)
	assert.Zero(t, docs)
	assert.Zero(t, chunks)
	assert.Zero(t, f.files.Len())
}

func TestAskHighlightsAndRecords(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "alice")

	answer, err := f.svc.Ask(context.Background(), models.Credential{}, AskRequest{
		Question:   "What is the minimum clear space around the logo?",
		DocumentID: doc.ID,
		SessionID:  "s1",
		UserID:     "alice",
	})
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "2x")
	require.NotEmpty(t, answer.Passages)
	highlighted := false
	for _, p := range answer.Passages {
		assert.Equal(t, doc.ID, p.DocumentID)
		if strings.Contains(p.Highlighted, "**clear**") {
			highlighted = true
		}
	}
	assert.True(t, highlighted)
	assert.Greater(t, answer.Usage.PromptTokens, 0)
	assert.Greater(t, answer.Usage.EmbeddingTokens, 0)

	turns, err := f.sessions.Load(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, schema.RoleUser, turns[0].Role)
	assert.Equal(t, answer.Text, turns[1].Content)

	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Questions)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 120, stats.PromptTokens+stats.CompletionTokens)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ask(context.Background(), models.Credential{}, AskRequest{Question: "   "})
	assert.True(t, errors.Is(err, ragerr.ErrInvalidInput))
	assert.Zero(t, f.gen.calls)
}

func TestAskWithoutDocumentsReturnsNoEvidence(t *testing.T) {
	f := newFixture(t)
	answer, err := f.svc.Ask(context.Background(), models.Credential{}, AskRequest{Question: "What font do headlines use?", DocumentID: "unknown"})
	require.NoError(t, err)
	assert.True(t, answer.NoEvidence)
	assert.Zero(t, answer.Confidence)
	assert.Empty(t, answer.Passages)
	assert.Zero(t, f.gen.calls)
}

func TestAskGenerationFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "alice")
	f.gen.err = ragerr.Newf(ragerr.KindGenerationUnavailable, "generate", "503")

	_, err := f.svc.Ask(context.Background(), models.Credential{}, AskRequest{Question: "Which colors are primary?", SessionID: "s2"})
	require.Error(t, err)
	assert.Equal(t, "Which colors are primary?", ragerr.QuestionOf(err))

	snap := f.counters.Snapshot()
	assert.Equal(t, 1, snap.Questions)
	assert.Equal(t, 1, snap.Failures)
	turns, _ := f.sessions.Load(context.Background(), "s2", 0)
	assert.Empty(t, turns)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, "alice")

	err := f.svc.Delete(ctx, "bob", doc.ID)
	assert.True(t, errors.Is(err, ragerr.ErrNotFound))

	require.NoError(t, f.svc.Delete(ctx, "alice", doc.ID))
	f.assertEmpty(t)

	err = f.svc.Delete(ctx, "alice", doc.ID)
	assert.True(t, errors.Is(err, ragerr.ErrNotFound))
}

func TestSummarizeIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, "alice")
	f.gen.reply = "A concise guide to colors, logo spacing and type."

	first, err := f.svc.Summarize(ctx, models.Credential{}, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, f.gen.reply, first.Summary)
	assert.False(t, first.Cached)
	assert.NotEmpty(t, first.KeySections)
	assert.LessOrEqual(t, len(first.KeySections), 5)

	second, err := f.svc.Summarize(ctx, models.Credential{}, "alice", doc.ID)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, 1, f.gen.calls)

	stored, _ := f.registry.Get(ctx, "", doc.ID)
	assert.Equal(t, first.Summary, stored.Summary)

	_, err = f.svc.Summarize(ctx, models.Credential{}, "alice", "missing")
	assert.True(t, errors.Is(err, ragerr.ErrNotFound))
}

func TestSummarizeReusesRegistrySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, "alice")
	require.NoError(t, f.registry.SetSummary(ctx, doc.ID, "Stored earlier.", time.Now()))

	got, err := f.svc.Summarize(ctx, models.Credential{}, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stored earlier.", got.Summary)
	assert.True(t, got.Cached)
	assert.NotEmpty(t, got.KeySections)
	assert.Equal(t, 0, f.gen.calls)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "alice")

	report := f.svc.Health(context.Background())
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, "memory", report.VectorBackend)
	assert.Equal(t, 1, report.TotalDocuments)
	assert.Greater(t, report.TotalChunks, 0)

	f.svc.deps.Probes = map[string]Probe{"redis": func(context.Context) error { return errors.New("connection refused") }}
	report = f.svc.Health(context.Background())
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "connection refused", report.Dependencies["redis"])
	assert.Equal(t, "ok", report.Dependencies["vector_index"])
}

func TestListScopesByOwner(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "alice")
	f.upload(t, "bob")

	mine, err := f.svc.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	all, err := f.svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := f.svc.Get(context.Background(), mine[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UploadedBy)
}

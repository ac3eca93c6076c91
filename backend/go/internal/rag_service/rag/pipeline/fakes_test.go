package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
)

// hashEmbedder is a deterministic bag-of-words embedder with signed feature hashing.
type hashEmbedder struct {
	mu    sync.Mutex
	dim   int
	calls int
	err   error
}

func (h *hashEmbedder) Embed(_ context.Context, _ models.Credential, texts []string) ([][]float32, models.TokenUsage, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	usage := models.TokenUsage{EmbeddingTokens: models.EstimateTokens(texts...)}
	if h.err != nil {
		return nil, usage, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, h.dim)
		for _, w := range strings.Fields(t) {
			w = normalizeWord(w)
			if w == "" || stopwords[w] {
				continue
			}
			f := fnv.New32a()
			_, _ = f.Write([]byte(w))
			sum := f.Sum32()
			sign := float32(1)
			if sum&(1<<20) != 0 {
				sign = -1
			}
			v[int(sum%uint32(h.dim))] += sign
		}
		out[i] = v
	}
	return out, usage, nil
}

// stubIndex returns fixed hits and records the k it was asked for.
type stubIndex struct {
	hits  []schema.ScoredChunk
	gotK  int
	gotID string
}

func (s *stubIndex) Upsert(context.Context, string, []schema.Chunk) error { return nil }
func (s *stubIndex) Search(_ context.Context, _ []float32, k int, documentID string) ([]schema.ScoredChunk, error) {
	s.gotK, s.gotID = k, documentID
	return s.hits, nil
}
func (s *stubIndex) Delete(context.Context, string) error                      { return nil }
func (s *stubIndex) Chunks(context.Context, string) ([]schema.Chunk, error)     { return nil, nil }
func (s *stubIndex) Count(context.Context) (int, error)                         { return len(s.hits), nil }
func (s *stubIndex) Backend() string                                            { return "stub" }

// scriptedGenerator returns a fixed reply and records requests.
type scriptedGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	usage models.TokenUsage
	reqs  []models.GenerateContentRequest
}

func (g *scriptedGenerator) Generate(_ context.Context, _ models.Credential, req models.GenerateContentRequest) (string, models.TokenUsage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return "", g.usage, g.err
	}
	return g.reply, g.usage, nil
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reqs)
}

var errUnavailable = ragerr.New(ragerr.KindGenerationUnavailable, "generate", errors.New("503 from provider"))

package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/interfaces"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
	"brandbook/backend/go/pkg/logger"
)

// RetrievalOptions are the retrieval policy knobs.
type RetrievalOptions struct {
	TopK int
	// CandidateMultiplier sizes the candidate pool fetched before filtering (k * multiplier).
	CandidateMultiplier int
	// MinScore drops candidates below this similarity.
	MinScore float64
}

// RetrievalOptionsFromConfig converts the retrieval section of the config.
func RetrievalOptionsFromConfig(cfg config.RetrievalConfig) RetrievalOptions {
	return RetrievalOptions{TopK: cfg.TopK, CandidateMultiplier: cfg.CandidateMultiplier, MinScore: cfg.MinScore}
}

// RetrievalPipeline embeds a question, searches the index and turns the hits into
// ranked passages.
type RetrievalPipeline struct {
	embedder interfaces.Embedder
	index    interfaces.VectorIndex
	opts     RetrievalOptions
	log      *logger.Logger
}

// NewRetrievalPipeline creates a new RetrievalPipeline.
func NewRetrievalPipeline(embedder interfaces.Embedder, index interfaces.VectorIndex, opts RetrievalOptions, log *logger.Logger) *RetrievalPipeline {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = 2
	}
	if log == nil {
		log = logger.New("RetrievalPipeline", "", "")
	}
	return &RetrievalPipeline{embedder: embedder, index: index, opts: opts, log: log}
}

// Run returns at most k passages for question, best first. A non-empty documentID
// restricts the search to that document. No passage above the threshold is a
// valid, empty result.
func (p *RetrievalPipeline) Run(ctx context.Context, cred models.Credential, question, documentID string, k int) ([]schema.RetrievedPassage, models.TokenUsage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.TokenUsage{}, ragerr.Newf(ragerr.KindInvalidInput, "retrieve", "question is empty")
	}
	if k <= 0 {
		k = p.opts.TopK
	}

	vectors, usage, err := p.embedder.Embed(ctx, cred, []string{question})
	if err != nil {
		p.log.Error(fmt.Sprintf("Failed to embed query: %v", err))
		return nil, usage, err
	}
	if len(vectors) != 1 {
		return nil, usage, ragerr.Newf(ragerr.KindEmbeddingUnavailable, "retrieve", "expected 1 query vector, got %d", len(vectors))
	}

	hits, err := p.index.Search(ctx, vectors[0], k*p.opts.CandidateMultiplier, documentID)
	if err != nil {
		p.log.Error(fmt.Sprintf("Failed to query vector index: %v", err))
		return nil, usage, err
	}
	p.log.Info(fmt.Sprintf("Retrieved %d candidates from %s index", len(hits), p.index.Backend()))

	kept := make([]schema.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h.Score >= p.opts.MinScore {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		p.log.Info("No candidates above the relevance threshold")
		return nil, usage, nil
	}

	passages := MergeAdjacent(kept)
	RankPassages(passages)
	if len(passages) > k {
		passages = passages[:k]
	}
	p.log.Info(fmt.Sprintf("Returning %d passages (%d candidates above threshold)", len(passages), len(kept)))
	return passages, usage, nil
}

// MergeAdjacent folds hits from consecutive chunks of the same document into one
// passage. A run of adjacent chunks keeps the identity and score of its best chunk
// and the texts are joined in sequence order with the shared overlap removed.
func MergeAdjacent(hits []schema.ScoredChunk) []schema.RetrievedPassage {
	byDoc := make(map[string][]schema.ScoredChunk)
	var order []string
	for _, h := range hits {
		if _, ok := byDoc[h.Chunk.DocumentID]; !ok {
			order = append(order, h.Chunk.DocumentID)
		}
		byDoc[h.Chunk.DocumentID] = append(byDoc[h.Chunk.DocumentID], h)
	}

	var out []schema.RetrievedPassage
	for _, doc := range order {
		group := byDoc[doc]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Chunk.Sequence < group[j].Chunk.Sequence })

		var run []schema.ScoredChunk
		flush := func() {
			if len(run) > 0 {
				out = append(out, mergeRun(run))
			}
			run = nil
		}
		for _, h := range group {
			if len(run) > 0 {
				last := run[len(run)-1].Chunk.Sequence
				if h.Chunk.Sequence == last {
					// Same chunk twice; keep the better score.
					if h.Score > run[len(run)-1].Score {
						run[len(run)-1] = h
					}
					continue
				}
				if h.Chunk.Sequence != last+1 {
					flush()
				}
			}
			run = append(run, h)
		}
		flush()
	}
	return out
}

func mergeRun(run []schema.ScoredChunk) schema.RetrievedPassage {
	best := run[0]
	text := run[0].Chunk.Text
	seqs := []int{run[0].Chunk.Sequence}
	for _, h := range run[1:] {
		if h.Score > best.Score {
			best = h
		}
		text = joinOverlapping(text, h.Chunk.Text)
		seqs = append(seqs, h.Chunk.Sequence)
	}
	chunk := best.Chunk
	chunk.Text = text
	chunk.Embedding = nil
	return schema.RetrievedPassage{Chunk: chunk, Score: best.Score, Sequences: seqs}
}

// maxOverlapWords bounds the suffix/prefix comparison.
const maxOverlapWords = 512

// joinOverlapping appends b to a, dropping the longest word prefix of b that is
// also a suffix of a.
func joinOverlapping(a, b string) string {
	aw, bw := strings.Fields(a), strings.Fields(b)
	limit := min(len(aw), len(bw), maxOverlapWords)
	for n := limit; n > 0; n-- {
		if equalWords(aw[len(aw)-n:], bw[:n]) {
			if n == len(bw) {
				return a
			}
			return a + " " + strings.Join(bw[n:], " ")
		}
	}
	return a + "\n" + b
}

func equalWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RankPassages sorts by score, ties broken by earlier sequence.
func RankPassages(passages []schema.RetrievedPassage) {
	sort.SliceStable(passages, func(i, j int) bool {
		a, b := passages[i], passages[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.DocumentID < b.DocumentID
	})
}

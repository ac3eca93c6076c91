// Package vectorstore holds the vector index backends: an exact in-memory index,
// an embedded persistent chromem index and a Milvus collection. All of them report
// similarity as score = 1 - d/2 for cosine distance d, so 1 means identical.
package vectorstore

import (
	"math"
	"sort"

	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
)

// Backend names accepted by the vectorIndex.backend setting.
const (
	BackendMemory  = "memory"
	BackendChromem = "chromem"
	BackendMilvus  = "milvus"
)

// similarity maps a cosine similarity in [-1,1] to a score in [0,1].
func similarity(cos float64) float64 {
	s := (1 + cos) / 2
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// checkChunks validates a batch before anything is written. dim is the index's
// current dimension (0 when empty); the returned value is the dimension to keep.
func checkChunks(op string, dim int, documentID string, chunks []schema.Chunk) (int, error) {
	if documentID == "" {
		return dim, ragerr.Newf(ragerr.KindInvalidInput, op, "document id is empty")
	}
	for _, c := range chunks {
		if c.ID == "" {
			return dim, ragerr.Newf(ragerr.KindInvalidInput, op, "chunk %d has no id", c.Sequence)
		}
		if c.DocumentID != "" && c.DocumentID != documentID {
			return dim, ragerr.Newf(ragerr.KindInvalidInput, op, "chunk %s belongs to document %s, not %s", c.ID, c.DocumentID, documentID)
		}
		if len(c.Embedding) == 0 {
			return dim, ragerr.Newf(ragerr.KindInvalidInput, op, "chunk %s has no embedding", c.ID)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return dim, ragerr.Newf(ragerr.KindDimensionMismatch, op, "chunk %s has dimension %d, index has %d", c.ID, len(c.Embedding), dim)
		}
	}
	return dim, nil
}

func checkQuery(op string, dim int, vector []float32) error {
	if len(vector) == 0 {
		return ragerr.Newf(ragerr.KindInvalidInput, op, "query vector is empty")
	}
	if dim != 0 && len(vector) != dim {
		return ragerr.Newf(ragerr.KindDimensionMismatch, op, "query has dimension %d, index has %d", len(vector), dim)
	}
	return nil
}

// sortHits orders hits best first, breaking ties by document and sequence.
func sortHits(hits []schema.ScoredChunk) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		return a.Chunk.Sequence < b.Chunk.Sequence
	})
}

func sortBySequence(chunks []schema.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Sequence < chunks[j].Sequence })
}

func cloneVector(v []float32) []float32 {
	return append([]float32(nil), v...)
}

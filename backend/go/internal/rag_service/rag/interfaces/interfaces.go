package interfaces

import (
	"context"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/schema"
)

// Extractor turns raw file bytes into text plus structural units.
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileType string) (schema.Extraction, error)
}

// Chunker splits extracted text into ordered, overlapping chunks.
type Chunker interface {
	Chunk(documentID string, ext schema.Extraction) []schema.Chunk
}

// Embedder converts texts into vectors. The returned vectors are in input order.
// Usage is returned even when err is non-nil so partial spend can be recorded.
type Embedder interface {
	Embed(ctx context.Context, cred models.Credential, texts []string) ([][]float32, models.TokenUsage, error)
}

// VectorIndex stores chunk vectors and answers nearest-neighbour queries.
// Scores are similarities in [0,1] derived from cosine distance.
type VectorIndex interface {
	// Upsert replaces any existing chunk with the same id. All vectors must share one dimension.
	Upsert(ctx context.Context, documentID string, chunks []schema.Chunk) error
	// Search returns at most k hits, best first. A non-empty documentID is a hard filter.
	Search(ctx context.Context, vector []float32, k int, documentID string) ([]schema.ScoredChunk, error)
	// Delete removes every chunk of the document. Deleting an absent document is a no-op.
	Delete(ctx context.Context, documentID string) error
	// Chunks returns all chunks of the document ordered by sequence.
	Chunks(ctx context.Context, documentID string) ([]schema.Chunk, error)
	Count(ctx context.Context) (int, error)
	Backend() string
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, cred models.Credential, req models.GenerateContentRequest) (string, models.TokenUsage, error)
}

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/interfaces"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
	"brandbook/backend/go/pkg/logger"
)

// upsertBatchSize bounds a single index write. Batches are written in order.
const upsertBatchSize = 256

// cleanupTimeout bounds the compensating delete, which runs even if ctx is cancelled.
const cleanupTimeout = 10 * time.Second

// Progress reports how far an ingestion has come.
type Progress struct {
	Message string
	Percent int
}

// IndexingPipeline drives chunking, embedding and index writes for one document,
// and owns document removal and summarization.
type IndexingPipeline struct {
	chunker  interfaces.Chunker
	embedder interfaces.Embedder
	index    interfaces.VectorIndex
	qa       *QAPipeline
	log      *logger.Logger
}

// NewIndexingPipeline creates a new IndexingPipeline.
func NewIndexingPipeline(chunker interfaces.Chunker, embedder interfaces.Embedder, index interfaces.VectorIndex, qa *QAPipeline, log *logger.Logger) *IndexingPipeline {
	if log == nil {
		log = logger.New("IndexingPipeline", "", "")
	}
	return &IndexingPipeline{chunker: chunker, embedder: embedder, index: index, qa: qa, log: log}
}

// Ingest indexes ext under documentID and returns the chunk count. It is
// all-or-nothing: on any failure every chunk of the document is deleted before the
// error is returned. progress may be nil.
func (p *IndexingPipeline) Ingest(ctx context.Context, cred models.Credential, documentID string, ext schema.Extraction, progress func(Progress)) (int, models.TokenUsage, error) {
	report := func(msg string, pct int) {
		if progress != nil {
			progress(Progress{Message: msg, Percent: pct})
		}
	}
	if documentID == "" {
		return 0, models.TokenUsage{}, ragerr.Newf(ragerr.KindInvalidInput, "ingest", "document id is empty")
	}
	log := p.log.WithField("document_id", documentID)
	log.Info(fmt.Sprintf("Starting indexing with %d structural units", len(ext.Units)))

	chunks := p.chunker.Chunk(documentID, ext)
	report(fmt.Sprintf("Split into %d chunks", len(chunks)), 25)

	// Replace any earlier version of the document.
	if err := p.index.Delete(ctx, documentID); err != nil {
		log.Error(fmt.Sprintf("Failed to clear previous chunks: %v", err))
		return 0, models.TokenUsage{}, err
	}
	if len(chunks) == 0 {
		report("Document has no text to index", 100)
		return 0, models.TokenUsage{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, usage, err := p.embedder.Embed(ctx, cred, texts)
	if err != nil {
		log.Error(fmt.Sprintf("Failed to embed chunks: %v", err))
		return 0, usage, p.abort(ctx, documentID, err)
	}
	if len(vectors) != len(chunks) {
		err := ragerr.Newf(ragerr.KindEmbeddingUnavailable, "ingest", "got %d vectors for %d chunks", len(vectors), len(chunks))
		return 0, usage, p.abort(ctx, documentID, err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	report("Successfully embedded all chunks", 60)

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		if err := p.index.Upsert(ctx, documentID, chunks[start:end]); err != nil {
			log.Error(fmt.Sprintf("Failed to add chunks to %s index: %v", p.index.Backend(), err))
			return 0, usage, p.abort(ctx, documentID, err)
		}
	}
	report("Successfully added chunks to the vector index", 95)

	log.Info(fmt.Sprintf("Successfully finished indexing %d chunks", len(chunks)))
	report("Indexing finished", 100)
	return len(chunks), usage, nil
}

// abort removes whatever was written for the document and returns cause.
func (p *IndexingPipeline) abort(ctx context.Context, documentID string, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := p.index.Delete(cleanupCtx, documentID); err != nil {
		p.log.WithField("document_id", documentID).Error(fmt.Sprintf("Compensating delete failed: %v", err))
		return fmt.Errorf("%w (cleanup also failed: %v)", cause, err)
	}
	return cause
}

// Remove deletes every chunk of the document. Removing an unknown document is a no-op.
func (p *IndexingPipeline) Remove(ctx context.Context, documentID string) error {
	p.log.WithField("document_id", documentID).Info("Removing document from the vector index")
	return p.index.Delete(ctx, documentID)
}

// Synopsis is a document summary together with the terms it leans on most.
type Synopsis struct {
	Text        string
	KeySections []string
	Usage       models.TokenUsage
	// Generated is false when a stored summary was reused.
	Generated bool
}

// Summarize reads the whole document in sequence order and returns its synopsis.
// A non-empty stored summary is reused and the model is not called.
func (p *IndexingPipeline) Summarize(ctx context.Context, cred models.Credential, documentID, stored string, sections int) (Synopsis, error) {
	chunks, err := p.index.Chunks(ctx, documentID)
	if err != nil {
		return Synopsis{}, err
	}
	out := Synopsis{Text: stored, KeySections: keySectionsOf(chunks, sections)}
	if stored != "" {
		return out, nil
	}
	out.Text, out.Usage, err = p.qa.Summarize(ctx, cred, chunks)
	if err != nil {
		return Synopsis{Usage: out.Usage}, err
	}
	out.Generated = true
	return out, nil
}

func keySectionsOf(chunks []schema.Chunk, n int) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if kw := Keywords(strings.Join(texts, "\n"), n); kw != nil {
		return kw
	}
	return []string{}
}

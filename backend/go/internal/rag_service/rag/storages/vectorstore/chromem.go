package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"brandbook/backend/go/internal/rag_service/rag/interfaces"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
	"brandbook/backend/go/pkg/logger"

	"github.com/philippgille/chromem-go"
)

const (
	chromemMarkerID = "__index_dimension__"
	metadataKeyType = "type"
	typeChunk       = "chunk"
	typeMarker      = "marker"
)

// ChromemStore is an embedded vector index backed by chromem-go. With a path it
// persists every document to disk and survives restarts. The index dimension is
// kept in a marker document so a reopened index still rejects mismatched vectors.
type ChromemStore struct {
	mu        sync.RWMutex
	coll      *chromem.Collection
	dim       int
	hasMarker bool
	log       *logger.Logger
}

// NewChromemStore opens (or creates) the collection. An empty path keeps the index in memory.
func NewChromemStore(ctx context.Context, path, collection string, dimension int) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else if db, err = chromem.NewPersistentDB(path, false); err != nil {
		return nil, ragerr.New(ragerr.KindIndexUnavailable, "open", fmt.Errorf("failed to open chromem db at %s: %w", path, err))
	}
	coll, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, ragerr.New(ragerr.KindIndexUnavailable, "open", fmt.Errorf("failed to open collection %s: %w", collection, err))
	}

	s := &ChromemStore{coll: coll, dim: max(dimension, 0), log: logger.New("VectorIndex", "", "")}
	if marker, err := coll.GetByID(ctx, chromemMarkerID); err == nil {
		stored, _ := strconv.Atoi(marker.Metadata["dimension"])
		if s.dim != 0 && stored != s.dim {
			return nil, ragerr.Newf(ragerr.KindDimensionMismatch, "open", "collection %s holds %d-dimensional vectors, configured %d", collection, stored, s.dim)
		}
		s.dim, s.hasMarker = stored, true
	}
	s.log.Info(fmt.Sprintf("Opened chromem collection '%s' with %d chunks (dimension %d)", collection, s.countLocked(), s.dim))
	return s, nil
}

func (s *ChromemStore) Backend() string { return BackendChromem }

func (s *ChromemStore) Upsert(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := checkChunks("upsert", s.dim, documentID, chunks)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if !s.hasMarker {
		marker := chromem.Document{
			ID:        chromemMarkerID,
			Metadata:  map[string]string{metadataKeyType: typeMarker, "dimension": strconv.Itoa(dim)},
			Embedding: unitVector(dim),
		}
		if err := s.coll.AddDocument(ctx, marker); err != nil {
			return ragerr.New(ragerr.KindIndexUnavailable, "upsert", err)
		}
		s.hasMarker = true
	}
	s.dim = dim

	// Sequentially, so chunks land in sequence order.
	for _, c := range chunks {
		doc := chromem.Document{
			ID: c.ID,
			Metadata: map[string]string{
				metadataKeyType:             typeChunk,
				schema.MetadataKeyDocumentID: documentID,
				schema.MetadataKeySequence:   strconv.Itoa(c.Sequence),
				schema.MetadataKeyKind:       string(c.Kind),
				schema.MetadataKeyLocator:    strconv.Itoa(c.Locator),
			},
			Embedding: cloneVector(c.Embedding),
			Content:   c.Text,
		}
		if err := s.coll.AddDocument(ctx, doc); err != nil {
			return ragerr.New(ragerr.KindIndexUnavailable, "upsert", fmt.Errorf("failed to add chunk %s: %w", c.ID, err))
		}
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, vector []float32, k int, documentID string) ([]schema.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := checkQuery("search", s.dim, vector); err != nil {
		return nil, err
	}
	// chromem rejects nResults above the collection size.
	n := min(k, s.coll.Count())
	if n <= 0 {
		return nil, nil
	}
	results, err := s.coll.QueryEmbedding(ctx, vector, n, s.where(documentID), nil)
	if err != nil {
		if strings.Contains(err.Error(), "same length") {
			return nil, ragerr.New(ragerr.KindDimensionMismatch, "search", err)
		}
		return nil, ragerr.New(ragerr.KindIndexUnavailable, "search", err)
	}

	hits := make([]schema.ScoredChunk, 0, len(results))
	for _, r := range results {
		hits = append(hits, schema.ScoredChunk{Chunk: toChunk(r, false), Score: similarity(float64(r.Similarity))})
	}
	sortHits(hits)
	return hits, nil
}

func (s *ChromemStore) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.coll.Delete(ctx, map[string]string{schema.MetadataKeyDocumentID: documentID}, nil); err != nil {
		return ragerr.New(ragerr.KindIndexUnavailable, "delete", err)
	}
	return nil
}

// Chunks scans the whole document. chromem has no listing API, so this is a
// filtered query with n equal to the collection size.
func (s *ChromemStore) Chunks(ctx context.Context, documentID string) ([]schema.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.coll.Count()
	if s.dim == 0 || n == 0 || documentID == "" {
		return nil, nil
	}
	results, err := s.coll.QueryEmbedding(ctx, unitVector(s.dim), n, s.where(documentID), nil)
	if err != nil {
		return nil, ragerr.New(ragerr.KindIndexUnavailable, "chunks", err)
	}
	out := make([]schema.Chunk, 0, len(results))
	for _, r := range results {
		out = append(out, toChunk(r, true))
	}
	sortBySequence(out)
	return out, nil
}

func (s *ChromemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(), nil
}

func (s *ChromemStore) countLocked() int {
	n := s.coll.Count()
	if s.hasMarker {
		n--
	}
	return n
}

func (s *ChromemStore) where(documentID string) map[string]string {
	where := map[string]string{metadataKeyType: typeChunk}
	if documentID != "" {
		where[schema.MetadataKeyDocumentID] = documentID
	}
	return where
}

func toChunk(r chromem.Result, withEmbedding bool) schema.Chunk {
	seq, _ := strconv.Atoi(r.Metadata[schema.MetadataKeySequence])
	loc, _ := strconv.Atoi(r.Metadata[schema.MetadataKeyLocator])
	c := schema.Chunk{
		ID:         r.ID,
		DocumentID: r.Metadata[schema.MetadataKeyDocumentID],
		Text:       r.Content,
		Kind:       schema.UnitKind(r.Metadata[schema.MetadataKeyKind]),
		Locator:    loc,
		Sequence:   seq,
	}
	if withEmbedding {
		c.Embedding = cloneVector(r.Embedding)
	}
	return c
}

func unitVector(dim int) []float32 {
	v := make([]float32, dim)
	if dim > 0 {
		v[0] = 1
	}
	return v
}

var _ interfaces.VectorIndex = (*ChromemStore)(nil)

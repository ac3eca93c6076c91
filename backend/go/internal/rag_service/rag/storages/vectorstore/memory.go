package vectorstore

import (
	"context"
	"sync"

	"brandbook/backend/go/internal/rag_service/rag/interfaces"
	"brandbook/backend/go/internal/rag_service/rag/schema"
)

// MemoryStore is an exact, process-local vector index. Writes take the lock for the
// whole batch, so searches never observe a half-written upsert.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	docs   map[string]map[string]schema.Chunk
	owners map[string]string
}

// NewMemoryStore creates an empty index. A positive dimension is enforced from the start.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dim:    max(dimension, 0),
		docs:   make(map[string]map[string]schema.Chunk),
		owners: make(map[string]string),
	}
}

func (s *MemoryStore) Backend() string { return BackendMemory }

func (s *MemoryStore) Upsert(_ context.Context, documentID string, chunks []schema.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := checkChunks("upsert", s.dim, documentID, chunks)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	s.dim = dim

	doc, ok := s.docs[documentID]
	if !ok {
		doc = make(map[string]schema.Chunk, len(chunks))
		s.docs[documentID] = doc
	}
	for _, c := range chunks {
		if prev, ok := s.owners[c.ID]; ok && prev != documentID {
			delete(s.docs[prev], c.ID)
			if len(s.docs[prev]) == 0 {
				delete(s.docs, prev)
			}
		}
		c.DocumentID = documentID
		c.Embedding = cloneVector(c.Embedding)
		doc[c.ID] = c
		s.owners[c.ID] = documentID
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, k int, documentID string) ([]schema.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := checkQuery("search", s.dim, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	var hits []schema.ScoredChunk
	score := func(doc map[string]schema.Chunk) {
		for _, c := range doc {
			out := c
			out.Embedding = nil
			hits = append(hits, schema.ScoredChunk{Chunk: out, Score: similarity(cosine(vector, c.Embedding))})
		}
	}
	if documentID != "" {
		score(s.docs[documentID])
	} else {
		for _, doc := range s.docs {
			score(doc)
		}
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.docs[documentID] {
		delete(s.owners, id)
	}
	delete(s.docs, documentID)
	return nil
}

func (s *MemoryStore) Chunks(_ context.Context, documentID string) ([]schema.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := s.docs[documentID]
	out := make([]schema.Chunk, 0, len(doc))
	for _, c := range doc {
		c.Embedding = cloneVector(c.Embedding)
		out = append(out, c)
	}
	sortBySequence(out)
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.owners), nil
}

var _ interfaces.VectorIndex = (*MemoryStore)(nil)

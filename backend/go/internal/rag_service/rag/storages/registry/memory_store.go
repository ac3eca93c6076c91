package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
)

// MemoryStore is a thread-safe, in-process Store. Records are copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]models.RagDocument
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]models.RagDocument)}
}

func (s *MemoryStore) Create(_ context.Context, doc *models.RagDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return ragerr.Newf(ragerr.KindInvalidInput, "create", "document %s already exists", doc.ID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	s.docs[doc.ID] = *doc
	return nil
}

func (s *MemoryStore) Get(_ context.Context, owner, id string) (*models.RagDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.owned(owner, id)
	if !ok {
		return nil, notFound("get", id)
	}
	return &doc, nil
}

func (s *MemoryStore) List(_ context.Context, owner string) ([]*models.RagDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RagDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		if owner != "" && doc.UploadedBy != owner {
			continue
		}
		d := doc
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateChunkCount(_ context.Context, id string, count int) error {
	return s.modify("update", id, func(d *models.RagDocument) { d.ChunkCount = count })
}

func (s *MemoryStore) SetSummary(_ context.Context, id, summary string, at time.Time) error {
	return s.modify("set summary", id, func(d *models.RagDocument) {
		d.Summary = summary
		d.SummaryAt = &at
	})
}

func (s *MemoryStore) Delete(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owned(owner, id); !ok {
		return notFound("delete", id)
	}
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *MemoryStore) modify(op, id string, fn func(*models.RagDocument)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return notFound(op, id)
	}
	fn(&doc)
	s.docs[id] = doc
	return nil
}

// owned must be called with the lock held.
func (s *MemoryStore) owned(owner, id string) (models.RagDocument, bool) {
	doc, ok := s.docs[id]
	if !ok || (owner != "" && doc.UploadedBy != owner) {
		return models.RagDocument{}, false
	}
	return doc, true
}

var _ Store = (*MemoryStore)(nil)

package filestore

import (
	"context"
	"sync"

	"brandbook/backend/go/internal/rag_service/rag/ragerr"
)

// MemoryStore keeps uploads in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, documentID, _, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[documentID] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, documentID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[documentID]
	if !ok {
		return nil, ragerr.Newf(ragerr.KindNotFound, "read file", "no stored file for %s", documentID)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, documentID)
	return nil
}

// Len reports how many files are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

var _ Store = (*MemoryStore)(nil)

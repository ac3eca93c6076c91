package sessions

import (
	"context"
	"sync"

	"brandbook/backend/go/internal/rag_service/rag/schema"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	max      int
	sessions map[string][]schema.ConversationTurn
}

// NewMemoryStore keeps up to 2*historyTurns turns per session.
func NewMemoryStore(historyTurns int) *MemoryStore {
	return &MemoryStore{max: capacity(historyTurns), sessions: make(map[string][]schema.ConversationTurn)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string, n int) ([]schema.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.sessions[sessionID]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]schema.ConversationTurn(nil), turns...), nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turns ...schema.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(s.sessions[sessionID], turns...)
	if len(all) > s.max {
		all = append([]schema.ConversationTurn(nil), all[len(all)-s.max:]...)
	}
	s.sessions[sessionID] = all
	return nil
}

var _ Store = (*MemoryStore)(nil)

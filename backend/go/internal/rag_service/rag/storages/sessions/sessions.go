// Package sessions stores conversation turns per session id so clients can
// send a session id instead of replaying the whole history.
package sessions

import (
	"context"

	"brandbook/backend/go/internal/rag_service/rag/schema"
)

// Store keeps a bounded list of turns per session, oldest first.
type Store interface {
	// Load returns at most the last n turns. An unknown session has no turns.
	Load(ctx context.Context, sessionID string, n int) ([]schema.ConversationTurn, error)
	Append(ctx context.Context, sessionID string, turns ...schema.ConversationTurn) error
}

// capacity is how many turns a session keeps for a history window of n turns.
func capacity(n int) int {
	if n <= 0 {
		n = 6
	}
	return 2 * n
}

package sessions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"brandbook/backend/go/internal/rag_service/rag/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turn(i int) schema.ConversationTurn {
	role := schema.RoleUser
	if i%2 == 1 {
		role = schema.RoleAssistant
	}
	return schema.ConversationTurn{Role: role, Content: fmt.Sprintf("turn %d", i), Timestamp: time.Unix(int64(i), 0)}
}

func TestMemoryStoreCapsTurns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	for i := 0; i < 10; i += 2 {
		require.NoError(t, s.Append(ctx, "s1", turn(i), turn(i+1)))
	}

	all, err := s.Load(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "turn 4", all[0].Content)
	assert.Equal(t, "turn 9", all[5].Content)

	last, err := s.Load(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "turn 8", last[0].Content)
	assert.Equal(t, schema.RoleAssistant, last[1].Role)
}

func TestMemoryStoreUnknownSession(t *testing.T) {
	turns, err := NewMemoryStore(6).Load(context.Background(), "nope", 4)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

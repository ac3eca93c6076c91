package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"brandbook/backend/go/internal/rag_service/rag/schema"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "brandbook:session:"

// RedisStore keeps each session as a Redis list of JSON turns.
type RedisStore struct {
	client *redis.Client
	max    int
	ttl    time.Duration
}

// NewRedisStore keeps up to 2*historyTurns turns per session. Idle sessions
// expire after ttl; zero disables expiry.
func NewRedisStore(client *redis.Client, historyTurns int, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, max: capacity(historyTurns), ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, sessionID string, n int) ([]schema.ConversationTurn, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	raw, err := s.client.LRange(ctx, keyPrefix+sessionID, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	turns := make([]schema.ConversationTurn, 0, len(raw))
	for _, r := range raw {
		var t schema.ConversationTurn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, turns ...schema.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, len(turns))
	for i, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
		values[i] = b
	}
	key := keyPrefix + sessionID
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-s.max), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to session %s: %w", sessionID, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"merchant-connect-layer/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "oauth_state:"

// RedisStore shares OAuth state between instances. Expiry is delegated to key TTLs.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis backed state store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Save writes the record with SET EX
func (s *RedisStore) Save(ctx context.Context, token string, st domain.OAuthState, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal oauth state: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+token, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// Take reads and deletes the record atomically with GETDEL
func (s *RedisStore) Take(ctx context.Context, token string) (*domain.OAuthState, error) {
	data, err := s.client.GetDel(ctx, keyPrefix+token).Bytes()
	return decodeState(data, err)
}

// Peek reads the record without consuming it
func (s *RedisStore) Peek(ctx context.Context, token string) (*domain.OAuthState, error) {
	data, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	return decodeState(data, err)
}

func decodeState(data []byte, err error) (*domain.OAuthState, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth state: %w", err)
	}

	var st domain.OAuthState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal oauth state: %w", err)
	}
	return &st, nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quantum-engine/pkg/state"
)

const (
	snapshotKeyPrefix = "gamestate:"
	snapshotTTL       = time.Hour
)

// RedisSnapshotStore persists game state snapshots so a session can be
// resumed after a restart. Keyed by session id, JSON blob, one hour TTL
// refreshed on every save.
type RedisSnapshotStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisSnapshotStore creates a snapshot store on an existing client,
// so it can share the connection with the fact store.
func NewRedisSnapshotStore(client *redis.Client, logger *slog.Logger) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, logger: logger}
}

func (s *RedisSnapshotStore) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	data, err := json.Marshal(gs)
	if err != nil {
		s.logger.Error("Failed to marshal gamestate", "id", id, "error", err)
		return fmt.Errorf("failed to marshal gamestate: %w", err)
	}

	key := snapshotKeyPrefix + id.String()
	if err := s.client.Set(ctx, key, string(data), snapshotTTL).Err(); err != nil {
		s.logger.Error("Failed to save gamestate", "id", id, "error", err)
		return fmt.Errorf("failed to save gamestate: %w", err)
	}
	return nil
}

// LoadGameState returns nil when no snapshot exists for the id.
func (s *RedisSnapshotStore) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	key := snapshotKeyPrefix + id.String()
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		s.logger.Error("Failed to load gamestate", "id", id, "error", err)
		return nil, fmt.Errorf("failed to load gamestate: %w", err)
	}

	var gs state.GameState
	if err := json.Unmarshal([]byte(data), &gs); err != nil {
		s.logger.Error("Failed to unmarshal gamestate", "id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal gamestate: %w", err)
	}
	return &gs, nil
}

func (s *RedisSnapshotStore) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	key := snapshotKeyPrefix + id.String()
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Error("Failed to delete gamestate", "id", id, "error", err)
		return fmt.Errorf("failed to delete gamestate: %w", err)
	}
	return nil
}

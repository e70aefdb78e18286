package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quantum-engine/pkg/gm"
)

const factKeyPrefix = "facts:"

// RedisFactStore implements the fact store on Redis: one hash per
// subject, predicate -> value.
type RedisFactStore struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisFactStore implements the FactStore interface
var _ gm.FactStore = (*RedisFactStore)(nil)

// NewRedisFactStore creates a Redis-backed fact store.
func NewRedisFactStore(redisURL string, logger *slog.Logger) *RedisFactStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	return &RedisFactStore{
		client: rdb,
		logger: logger,
	}
}

// NewRedisFactStoreFromClient wraps an existing client (tests use
// miniredis).
func NewRedisFactStoreFromClient(client *redis.Client, logger *slog.Logger) *RedisFactStore {
	return &RedisFactStore{client: client, logger: logger}
}

func (s *RedisFactStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisFactStore) Close() error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	return nil
}

// WaitForConnection waits for Redis to become available during startup.
func (s *RedisFactStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := s.Ping(ctx); err != nil {
			s.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		s.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (s *RedisFactStore) GetFact(ctx context.Context, subjectKey, predicate string) (gm.Fact, bool, error) {
	val, err := s.client.HGet(ctx, factKeyPrefix+subjectKey, predicate).Result()
	if err != nil {
		if err == redis.Nil {
			return gm.Fact{}, false, nil
		}
		return gm.Fact{}, false, fmt.Errorf("redis hget failed: %w", err)
	}
	return gm.Fact{SubjectKey: subjectKey, Predicate: predicate, Value: val}, true, nil
}

func (s *RedisFactStore) FactsForSubject(ctx context.Context, subjectPattern string) ([]gm.Fact, error) {
	match := factKeyPrefix + subjectPattern
	if !strings.HasSuffix(match, "*") {
		// Exact subject: skip the scan.
		return s.subjectFacts(ctx, subjectPattern)
	}

	var out []gm.Fact
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		subject := strings.TrimPrefix(iter.Val(), factKeyPrefix)
		facts, err := s.subjectFacts(ctx, subject)
		if err != nil {
			return nil, err
		}
		out = append(out, facts...)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return out, nil
}

func (s *RedisFactStore) subjectFacts(ctx context.Context, subjectKey string) ([]gm.Fact, error) {
	fields, err := s.client.HGetAll(ctx, factKeyPrefix+subjectKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	facts := make([]gm.Fact, 0, len(fields))
	for predicate, value := range fields {
		facts = append(facts, gm.Fact{SubjectKey: subjectKey, Predicate: predicate, Value: value})
	}
	return facts, nil
}

func (s *RedisFactStore) RecordFact(ctx context.Context, fact gm.Fact) error {
	if err := s.client.HSet(ctx, factKeyPrefix+fact.SubjectKey, fact.Predicate, fact.Value).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

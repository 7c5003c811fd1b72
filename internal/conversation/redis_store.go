package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions in Redis: turns as a JSON list, the profile as
// a JSON string, both under a shared idle TTL so abandoned sessions expire.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

func turnsKey(sessionID string) string   { return "session:" + sessionID + ":turns" }
func profileKey(sessionID string) string { return "session:" + sessionID + ":profile" }
func markerKey(sessionID string) string  { return "session:" + sessionID }

func (s *RedisStore) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.client.Set(ctx, markerKey(id), time.Now().Unix(), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, sessionID string, turn Turn) error {
	if err := s.exists(ctx, sessionID); err != nil {
		return err
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, turnsKey(sessionID), data)
	s.refresh(ctx, pipe, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

func (s *RedisStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	if err := s.exists(ctx, sessionID); err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, turnsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisStore) TrimTurns(ctx context.Context, sessionID string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	if keep == 0 {
		return s.client.Del(ctx, turnsKey(sessionID)).Err()
	}
	return s.client.LTrim(ctx, turnsKey(sessionID), int64(-keep), -1).Err()
}

func (s *RedisStore) Profile(ctx context.Context, sessionID string) (Profile, error) {
	if err := s.exists(ctx, sessionID); err != nil {
		return Profile{}, err
	}
	raw, err := s.client.Get(ctx, profileKey(sessionID)).Result()
	if err == redis.Nil {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return Profile{}, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return profile, nil
}

func (s *RedisStore) SaveProfile(ctx context.Context, sessionID string, profile Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return s.client.Set(ctx, profileKey(sessionID), data, s.ttl).Err()
}

func (s *RedisStore) Reset(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, markerKey(sessionID), turnsKey(sessionID), profileKey(sessionID)).Err()
}

func (s *RedisStore) exists(ctx context.Context, sessionID string) error {
	n, err := s.client.Exists(ctx, markerKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// refresh extends the idle TTL on every session key.
func (s *RedisStore) refresh(ctx context.Context, pipe redis.Pipeliner, sessionID string) {
	pipe.Expire(ctx, markerKey(sessionID), s.ttl)
	pipe.Expire(ctx, turnsKey(sessionID), s.ttl)
	pipe.Expire(ctx, profileKey(sessionID), s.ttl)
}

package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/prompt"
)

const redisPrefix = "promptbench:workspace:"

// RedisStore keeps each workspace as a JSON value whose TTL is refreshed on
// every write.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid redis_url: %v", err))
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewInternal(fmt.Errorf("connect to redis: %w", err))
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(token string) string {
	return redisPrefix + token
}

func (s *RedisStore) Get(ctx context.Context, token string) (*prompt.Workspace, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err == redis.Nil {
		return nil, errors.NewNotFound("workspace", token)
	}
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("get workspace: %w", err))
	}

	var w prompt.Workspace
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("decode workspace: %w", err))
	}
	return &w, nil
}

func (s *RedisStore) Put(ctx context.Context, w *prompt.Workspace) error {
	now := time.Now().Unix()
	if w.CreatedAt == 0 {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	data, err := json.Marshal(w)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("encode workspace: %w", err))
	}
	// Zero TTL means no expiry in go-redis.
	if err := s.client.Set(ctx, s.key(w.Token), data, s.ttl).Err(); err != nil {
		return errors.NewInternal(fmt.Errorf("save workspace: %w", err))
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return errors.NewInternal(fmt.Errorf("delete workspace: %w", err))
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

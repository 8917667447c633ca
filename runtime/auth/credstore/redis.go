package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AltairaLabs/convostream/runtime/auth"
)

const defaultTTL = 720 * time.Hour

// RedisStore keeps the credential in redis as JSON under one key.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	name   string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the key expiry. Default is 30 days. Set to 0 for no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "convostream".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithProfile names the stored credential, so several sign-ins can share
// one redis. Default is "default"; an empty name keeps it.
func WithProfile(name string) RedisOption {
	return func(s *RedisStore) {
		if name != "" {
			s.name = name
		}
	}
}

// NewRedisStore creates a redis-backed credential store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithPrefix("myapp"),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: "convostream",
		name:   "default",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Load implements auth.Store.
func (s *RedisStore) Load(ctx context.Context) (auth.Credential, error) {
	data, err := s.client.Get(ctx, s.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return auth.Credential{}, auth.ErrNoCredential
		}
		return auth.Credential{}, fmt.Errorf("redis get failed: %w", err)
	}

	var cred auth.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return auth.Credential{}, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return cred, nil
}

// Save implements auth.Store.
func (s *RedisStore) Save(ctx context.Context, cred auth.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := s.client.Set(ctx, s.key(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements auth.Store.
func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (s *RedisStore) key() string {
	return fmt.Sprintf("%s:credential:%s", s.prefix, s.name)
}

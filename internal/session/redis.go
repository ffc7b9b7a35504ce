package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avlabs/authgate/internal/observability"
)

// keyPrefix namespaces session keys in a shared redis instance.
const keyPrefix = "authgate:session:"

// redisStore persists sessions in redis with the sliding window mapped
// onto key TTLs: redis expires the key, so there is no lazy-expiration
// path of our own.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger observability.Logger
}

// RedisOption is a functional option for the redis store.
type RedisOption func(*redisStore)

// WithRedisLogger sets the logger for the redis store.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *redisStore) {
		s.logger = logger
	}
}

// NewRedisStore creates a redis-backed session store with the given
// sliding TTL. The caller owns the client's lifecycle until Close.
func NewRedisStore(client *redis.Client, ttl time.Duration, opts ...RedisOption) Store {
	s := &redisStore{
		client: client,
		ttl:    ttl,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(token string) string {
	return keyPrefix + token
}

func (s *redisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.Token = token
	return &sess, nil
}

func (s *redisStore) Create(ctx context.Context) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		Token:     token,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, key(token), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis create session: %w", err)
	}

	s.logger.Debug("session created")
	return sess, nil
}

func (s *redisStore) Touch(ctx context.Context, token string) error {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	return s.save(ctx, token, sess)
}

func (s *redisStore) SetAuthenticated(ctx context.Context, token string, authenticated bool) error {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	sess.Authenticated = authenticated
	return s.save(ctx, token, sess)
}

// save rewrites the session and resets the key TTL, extending the
// sliding window.
func (s *redisStore) save(ctx context.Context, token string, sess *Session) error {
	sess.ExpiresAt = time.Now().Add(s.ttl)

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, key(token), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, key(token)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (s *redisStore) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan sessions: %w", err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

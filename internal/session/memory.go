package session

import (
	"context"
	"sync"
	"time"

	"github.com/avlabs/authgate/internal/observability"
)

// memoryStore is the default in-process store. A single mutex guards
// the map; contention is low (one entry per browser) and holding the
// lock across read-modify-write keeps touch and flip linearizable.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	logger   observability.Logger
}

// MemoryOption is a functional option for the memory store.
type MemoryOption func(*memoryStore)

// WithMemoryLogger sets the logger for the memory store.
func WithMemoryLogger(logger observability.Logger) MemoryOption {
	return func(s *memoryStore) {
		s.logger = logger
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *memoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an in-memory session store with the given
// sliding TTL.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) Store {
	s := &memoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) Get(_ context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Expired(s.now()) {
		// Lazy expiration: drop on access instead of sweeping.
		delete(s.sessions, token)
		return nil, ErrNotFound
	}

	copied := *sess
	return &copied, nil
}

func (s *memoryStore) Create(_ context.Context) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		Token:     token,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()

	s.logger.Debug("session created")

	copied := *sess
	return &copied, nil
}

func (s *memoryStore) Touch(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	now := s.now()
	if !ok || sess.Expired(now) {
		delete(s.sessions, token)
		return ErrNotFound
	}

	sess.ExpiresAt = now.Add(s.ttl)
	return nil
}

func (s *memoryStore) SetAuthenticated(_ context.Context, token string, authenticated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	now := s.now()
	if !ok || sess.Expired(now) {
		delete(s.sessions, token)
		return ErrNotFound
	}

	sess.Authenticated = authenticated
	sess.ExpiresAt = now.Add(s.ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, sess := range s.sessions {
		if !sess.Expired(now) {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Close() error {
	return nil
}

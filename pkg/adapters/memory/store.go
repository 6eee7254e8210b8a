package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Session
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL expires sessions idle for longer than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		data: make(map[string]*domain.Session),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the stored session if it exists and has not expired.
// Callers must hold s.mu.
func (s *Store) live(userID string) (*domain.Session, bool) {
	sess, ok := s.data[userID]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && s.now().Sub(sess.LastActivityAt) > s.ttl {
		return nil, false
	}
	return sess, true
}

// Get retrieves the session from memory.
func (s *Store) Get(ctx context.Context, userID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.live(userID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	// Copy on read so callers can't mutate store state by pointer
	return sess.Clone(), nil
}

// CompareAndSet stores next if the live version equals expected.
func (s *Store) CompareAndSet(ctx context.Context, userID string, expected int64, next *domain.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if sess, ok := s.live(userID); ok {
		current = sess.Version
	}
	if current != expected {
		return false, nil
	}

	next.Version = expected + 1
	s.data[userID] = next.Clone()
	return true, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userID)
	return nil
}

// List returns live sessions and drops expired ones.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		if _, ok := s.live(id); !ok {
			delete(s.data, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

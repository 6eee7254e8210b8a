package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// maxAttempts is the first run plus a single retry after a version conflict.
const maxAttempts = 2

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// UpdateFunc computes the next session from the current one. current is a
// private copy; fresh reports that no live session existed for the user.
// It may run twice when the first write loses a race.
type UpdateFunc func(ctx context.Context, current *domain.Session, fresh bool) (*domain.Session, error)

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker     ports.DistributedLocker // Optional distributed locker
	lockTTL    time.Duration
	now        func() time.Time
	onConflict func(ctx context.Context, userID string)
	logger     *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks. It should exceed the action
// timeout so a lock is not lost mid-cycle.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithClock overrides the time source used to stamp LastActivityAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithConflictHook registers a callback invoked on every version conflict.
func WithConflictHook(fn func(ctx context.Context, userID string)) Option {
	return func(m *Manager) {
		m.onConflict = fn
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		now:     time.Now,
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(userID) after unlocking.
func (m *Manager) acquire(userID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[userID]
	if !exists {
		entry = &lockEntry{}
		m.locks[userID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[userID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, userID)
	}
}

// Get reads a session without taking the user's lock.
func (m *Manager) Get(ctx context.Context, userID string) (*domain.Session, error) {
	return m.store.Get(ctx, userID)
}

// Update runs fn against the user's current session and persists its result.
// Missing or expired sessions are replaced by a fresh NoActiveFlow session.
// It returns the persisted session.
func (m *Manager) Update(ctx context.Context, userID string, fn UpdateFunc) (*domain.Session, error) {
	var saved *domain.Session
	err := m.WithLock(ctx, userID, func(ctx context.Context) error {
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			current, fresh, err := m.load(ctx, userID)
			if err != nil {
				return err
			}
			expected := current.Version

			next, err := fn(ctx, current.Clone(), fresh)
			if err != nil {
				return err
			}
			next.UserID = userID
			next.LastActivityAt = m.now().UTC()

			ok, err := m.store.CompareAndSet(ctx, userID, expected, next)
			if err != nil {
				return fmt.Errorf("failed to persist session: %w", err)
			}
			if ok {
				saved = next
				return nil
			}

			m.logger.Warn("Session version conflict",
				"user", userID,
				"expected_version", expected,
				"attempt", attempt,
			)
			if m.onConflict != nil {
				m.onConflict(ctx, userID)
			}
		}
		return domain.ErrSessionConflict
	})
	return saved, err
}

func (m *Manager) load(ctx context.Context, userID string) (*domain.Session, bool, error) {
	s, err := m.store.Get(ctx, userID)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}
	return domain.NewSession(userID, m.now().UTC()), true, nil
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, userID string) error {
	return m.WithLock(ctx, userID, func(ctx context.Context) error {
		return m.store.Delete(ctx, userID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// WithLock executes a function while holding the lock for the user.
func (m *Manager) WithLock(ctx context.Context, userID string, fn func(context.Context) error) error {
	entry := m.acquire(userID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(userID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, userID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even if ctx was canceled mid-cycle.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"user", userID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

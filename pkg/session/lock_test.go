package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// MockStore structure
type MockStore struct{}

func (m *MockStore) Get(ctx context.Context, userID string) (*domain.Session, error) {
	return nil, domain.ErrSessionNotFound
}
func (m *MockStore) CompareAndSet(ctx context.Context, userID string, expected int64, next *domain.Session) (bool, error) {
	return true, nil
}
func (m *MockStore) Delete(ctx context.Context, userID string) error { return nil }
func (m *MockStore) List(ctx context.Context) ([]string, error)      { return nil, nil }

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(&MockStore{})
	ctx := context.Background()
	count := 10000

	keep := func(_ context.Context, s *domain.Session, _ bool) (*domain.Session, error) { return s, nil }

	// 1. Update and Delete many sessions
	for i := 0; i < count; i++ {
		uid := fmt.Sprintf("user-%d", i)
		_, _ = mgr.Update(ctx, uid, keep)
		_ = mgr.Delete(ctx, uid)
	}

	// 2. Count locks remaining in map
	lockCount := len(mgr.locks)

	// 3. Assert Leak
	t.Logf("Sessions Updated: %d, Locks Leaked: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}

package ports

import (
	"context"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// SessionStore persists per-user sessions with optimistic versioning.
//
// Expiry is owned by the store: an expired session must behave exactly like a
// missing one for both Get and CompareAndSet.
type SessionStore interface {
	// Get retrieves the session of a user.
	// Returns domain.ErrSessionNotFound if the session does not exist or expired.
	Get(ctx context.Context, userID string) (*domain.Session, error)

	// CompareAndSet stores next only if the stored version equals expected
	// (0 meaning "absent"). On success the stored record carries version
	// expected+1 and next.Version is updated accordingly. A lost race returns
	// false with a nil error.
	CompareAndSet(ctx context.Context, userID string, expected int64, next *domain.Session) (bool, error)

	// Delete removes the session of a user. Deleting a missing session is not an error.
	Delete(ctx context.Context, userID string) error

	// List returns the ids of all live sessions.
	List(ctx context.Context) ([]string, error)
}

package ports

import (
	"context"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// MessageSender delivers outbound messages to a user over a messaging platform.
type MessageSender interface {
	Send(ctx context.Context, userID string, msgs []domain.OutgoingMessage) error
}

// Deduplicator tracks platform message ids so a redelivered message never
// reaches the engine twice.
type Deduplicator interface {
	// Claim records key and reports whether the caller is the first to see it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a later redelivery can be processed again.
	Release(ctx context.Context, key string) error
}

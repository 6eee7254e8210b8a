package ports

import (
	"context"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// ConversationEngine is the single entry point transports drive.
type ConversationEngine interface {
	HandleInboundEvent(ctx context.Context, userID string, ev domain.IncomingEvent) ([]domain.OutgoingMessage, error)
}

// SessionInspector is implemented by engines that expose session state to
// operator tooling.
type SessionInspector interface {
	Session(ctx context.Context, userID string) (*domain.Session, error)
	ResetSession(ctx context.Context, userID string) error
}

package ports

import (
	"context"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// ActionDispatcher invokes registered actions by id.
// Dispatch never panics and never returns an error: every outcome is folded
// into the ActionResult.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, actionID string, actx domain.ActionContext) domain.ActionResult
	Has(actionID string) bool
}

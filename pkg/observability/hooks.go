package observability

import (
	"context"
	"log/slog"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// LogHooks returns lifecycle hooks writing one debug record per event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnInbound: func(ctx context.Context, e *domain.InboundEvent) {
			logger.DebugContext(ctx, "inbound", "user_id", e.UserID, "mode", e.Mode)
		},
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_enter",
				"user_id", e.UserID,
				"flow_id", e.FlowID,
				"step_id", e.StepID,
				"menu_id", e.MenuID,
			)
		},
		OnInvalidInput: func(ctx context.Context, e *domain.ValidationEvent) {
			logger.DebugContext(ctx, "invalid_input",
				"user_id", e.UserID,
				"step_id", e.StepID,
				"reason", e.Reason,
				"exhausted", e.Exhausted,
			)
		},
		OnActionReturn: func(ctx context.Context, e *domain.ActionEvent) {
			logger.DebugContext(ctx, "action_return",
				"user_id", e.UserID,
				"action_id", e.ActionID,
				"success", e.Success,
				"error_kind", e.Error,
				"duration", e.Duration,
			)
		},
		OnConflict: func(ctx context.Context, e *domain.EventBase) {
			logger.DebugContext(ctx, "session_conflict", "user_id", e.UserID)
		},
	}
}

// Combine returns hooks calling every non-nil hook of each set, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnInbound = chain(out.OnInbound, h.OnInbound)
		out.OnStepEnter = chain(out.OnStepEnter, h.OnStepEnter)
		out.OnInvalidInput = chain(out.OnInvalidInput, h.OnInvalidInput)
		out.OnActionDispatch = chain(out.OnActionDispatch, h.OnActionDispatch)
		out.OnActionReturn = chain(out.OnActionReturn, h.OnActionReturn)
		out.OnConflict = chain(out.OnConflict, h.OnConflict)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

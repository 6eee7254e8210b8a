package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/validator"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// TransitionKind classifies the outcome of resolving one input.
type TransitionKind string

const (
	// TransitionAdvance follows a valid input to the next target.
	TransitionAdvance TransitionKind = "advance"
	// TransitionRetry re-prompts the same step.
	TransitionRetry TransitionKind = "retry"
	// TransitionRedirect follows the step's on_invalid target.
	TransitionRedirect TransitionKind = "redirect"
	// TransitionExhausted follows the recovery target after too many invalid inputs.
	TransitionExhausted TransitionKind = "exhausted"
)

// Transition is the decision taken for one input on one step.
type Transition struct {
	Kind   TransitionKind
	Target string
	// Actions run before moving to Target. Only set on advance.
	Actions []domain.ActionRef
	// RetryCount is the counter to persist with the new position.
	RetryCount int
	// Notice is sent together with the render of Target.
	Notice string
}

// ConditionEvaluator decides whether a branch condition holds.
type ConditionEvaluator func(ctx context.Context, condition string, env map[string]any) (bool, error)

// ExprEvaluator evaluates conditions with expr-lang, caching compiled programs.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEvaluator creates an evaluator with an empty program cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate runs condition against env. The condition must yield a boolean.
func (e *ExprEvaluator) Evaluate(_ context.Context, condition string, env map[string]any) (bool, error) {
	e.mu.RLock()
	program, ok := e.cache[condition]
	e.mu.RUnlock()

	if !ok {
		var err error
		program, err = expr.Compile(condition, expr.AsBool())
		if err != nil {
			return false, err
		}
		e.mu.Lock()
		e.cache[condition] = program
		e.mu.Unlock()
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

// Resolver turns a validation outcome into a Transition.
type Resolver struct {
	evaluator ConditionEvaluator
	logger    *slog.Logger
}

// NewResolver creates a resolver. A nil evaluator uses an ExprEvaluator.
func NewResolver(evaluator ConditionEvaluator, logger *slog.Logger) *Resolver {
	if evaluator == nil {
		evaluator = NewExprEvaluator().Evaluate
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{evaluator: evaluator, logger: logger}
}

// Resolve decides where the session goes after outcome was produced for step.
//
// Valid input resets the retry counter and follows the first matching branch,
// else Next. Invalid input increments the counter; once it exceeds
// MaxRetries the recovery target wins, before that the on_invalid redirect
// (or the same step) does.
func (r *Resolver) Resolve(ctx context.Context, step *domain.StepDefinition, outcome validator.Outcome, sess *domain.Session, msgs catalog.Messages) Transition {
	if outcome.Valid {
		return Transition{
			Kind:    TransitionAdvance,
			Target:  r.nextTarget(ctx, step, outcome.Value, sess),
			Actions: step.Actions,
		}
	}

	count := sess.RetryCount + 1
	if step.MaxRetries != nil && count > *step.MaxRetries {
		return Transition{
			Kind:   TransitionExhausted,
			Target: step.Recovery,
			Notice: msgs.TooManyAttempts,
		}
	}

	notice := step.OnInvalid.Prompt
	if notice == "" {
		notice = msgs.InvalidInput
	}
	if next := step.OnInvalid.Next; next != "" && next != step.ID {
		return Transition{Kind: TransitionRedirect, Target: next, RetryCount: count, Notice: notice}
	}
	return Transition{Kind: TransitionRetry, Target: step.ID, RetryCount: count, Notice: notice}
}

// nextTarget evaluates branches in order. A condition failing at runtime is
// treated as false.
func (r *Resolver) nextTarget(ctx context.Context, step *domain.StepDefinition, value any, sess *domain.Session) string {
	if len(step.Branches) == 0 {
		return step.Next
	}

	env := map[string]any{
		"input":   value,
		"context": domain.CopyContext(sess.ContextData),
	}
	for _, b := range step.Branches {
		ok, err := r.evaluator(ctx, b.When, env)
		if err != nil {
			r.logger.Warn("Branch condition failed", "step_id", step.ID, "when", b.When, "err", err)
			continue
		}
		if ok {
			return b.Next
		}
	}
	return step.Next
}

// Package registry maps action identifiers to handlers and dispatches them
// with a bounded context.
//
// Handlers are registered at startup. Registering an id twice is a
// configuration mistake and fails with a DuplicateActionError. Dispatch never
// panics and never returns an error: unknown ids, handler errors, panics and
// timeouts are all folded into a failed domain.ActionResult.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// DefaultTimeout bounds a single handler invocation when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Handler implements an action. Returning a non-nil error, or a result built
// with domain.Failed, marks the dispatch as failed; the result's messages and
// patch are then discarded.
type Handler func(ctx context.Context, actx domain.ActionContext) (domain.ActionResult, error)

// DuplicateActionError is returned when an action id is registered twice.
type DuplicateActionError struct {
	ActionID string
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("action %q is already registered", e.ActionID)
}

// ErrUnknownAction is the detail attached to results for unregistered ids.
var ErrUnknownAction = errors.New("action not registered")

// Registry manages the available actions.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds every handler invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// WithLogger sets the logger used to report failed dispatches.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		timeout:  DefaultTimeout,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a handler to the registry.
func (r *Registry) Register(id string, h Handler) error {
	if id == "" {
		return errors.New("action id must not be empty")
	}
	if h == nil {
		return fmt.Errorf("action %q: nil handler", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[id]; exists {
		return &DuplicateActionError{ActionID: id}
	}
	r.handlers[id] = h
	return nil
}

// MustRegister is Register for bootstrap code; it panics on error.
func (r *Registry) MustRegister(id string, h Handler) {
	if err := r.Register(id, h); err != nil {
		panic(err)
	}
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[id]
	return ok
}

// Names returns the registered ids in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

type outcome struct {
	res domain.ActionResult
	err error
}

// Dispatch looks up an action by id and invokes it, waiting for completion,
// the configured timeout or ctx cancellation, whichever comes first.
func (r *Registry) Dispatch(ctx context.Context, id string, actx domain.ActionContext) domain.ActionResult {
	r.mu.RLock()
	h, ok := r.handlers[id]
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("Action not registered", "action_id", id, "user_id", actx.UserID)
		return domain.Failed(domain.ErrUnknownAction, fmt.Errorf("%w: %s", ErrUnknownAction, id))
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	actx.ActionID = id
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("action %q panicked: %v\n%s", id, p, debug.Stack())}
			}
		}()
		res, err := h(ctx, actx)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			r.logger.Debug("Action returned an error", "action_id", id, "user_id", actx.UserID, "err", o.err)
			return domain.Failed(domain.ErrActionFailure, o.err)
		}
		if o.res.Error != "" {
			return reportedFailure(id, o.res)
		}
		o.res.Success = true
		o.res.Error = ""
		o.res.Err = nil
		return o.res
	case <-ctx.Done():
		err := ctx.Err()
		kind := domain.ErrActionFailure
		if errors.Is(err, context.DeadlineExceeded) {
			kind = domain.ErrActionTimeout
		}
		r.logger.Debug("Action did not complete", "action_id", id, "user_id", actx.UserID, "err", err)
		return domain.Failed(kind, fmt.Errorf("action %q: %w", id, err))
	}
}

// reportedFailure normalizes a result a handler marked as failed without
// returning an error. Only a timeout keeps its kind.
func reportedFailure(id string, res domain.ActionResult) domain.ActionResult {
	kind := domain.ErrActionFailure
	if res.Error == domain.ErrActionTimeout {
		kind = domain.ErrActionTimeout
	}
	err := res.Err
	if err == nil {
		err = fmt.Errorf("action %q reported %s", id, res.Error)
	}
	return domain.Failed(kind, err)
}

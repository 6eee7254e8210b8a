package astrobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/runtime"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/file"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/memory"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/registry"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/session"
)

// ErrUnregisteredActions is returned by New in strict mode when the flow
// definitions reference actions the registry does not know.
var ErrUnregisteredActions = errors.New("flow definitions reference unregistered actions")

// ErrInvalidEvent is returned for events without a user id or payload.
var ErrInvalidEvent = errors.New("invalid inbound event")

// Engine is the high-level entry point of the conversation engine.
// It wires the flow catalog, the session manager, the action registry and
// the processing cycle together.
type Engine struct {
	catalog  *catalog.Catalog
	registry *registry.Registry
	sessions *session.Manager
	runtime  *runtime.Engine

	source        ports.ConfigSource
	store         ports.SessionStore
	locker        ports.DistributedLocker
	evaluator     runtime.ConditionEvaluator
	interpolator  runtime.Interpolator
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
	now           func() time.Time
	strictActions bool
	actionTimeout time.Duration
	lockTTL       time.Duration

	// Name labels the flow set, derived from the flows path.
	Name string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithSource injects a custom configuration source, bypassing the default
// file source.
func WithSource(s ports.ConfigSource) Option {
	return func(e *Engine) {
		e.source = s
	}
}

// WithStore sets the session store. The default is an in-memory store.
func WithStore(s ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker adds a distributed lock around each processing cycle.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLockTTL sets the distributed lock lease. It should exceed the action
// timeout.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = ttl
	}
}

// WithRegistry sets the action registry. The default is an empty registry.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithActionTimeout sets the per-action timeout of the default registry.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.actionTimeout = d
	}
}

// WithConditionEvaluator sets a custom branch condition evaluator.
func WithConditionEvaluator(eval runtime.ConditionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = eval
	}
}

// WithInterpolator sets a custom prompt interpolator.
func WithInterpolator(interp runtime.Interpolator) Option {
	return func(e *Engine) {
		e.interpolator = interp
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithStrictActions makes New fail when a flow references an action that is
// not registered. Otherwise, and on later reloads, this is only logged.
func WithStrictActions(strict bool) Option {
	return func(e *Engine) {
		e.strictActions = strict
	}
}

// WithClock overrides the clock used for session timestamps and events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New initializes an Engine and loads its flow definitions.
// By default flows are read from the YAML/JSON files under flowsPath. If
// WithSource is provided, flowsPath may be empty.
//
// Invalid definitions are fatal: the returned error is a *schema.SchemaError
// listing every issue.
func New(ctx context.Context, flowsPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if eng.source == nil {
		if flowsPath == "" {
			return nil, fmt.Errorf("flowsPath is required when no custom source is provided")
		}
		absPath, err := filepath.Abs(flowsPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)
		eng.source = file.NewSource(absPath, file.WithSourceLogger(eng.logger))
	} else if flowsPath != "" {
		eng.Name = filepath.Base(flowsPath)
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("flows", eng.Name)
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.registry == nil {
		regOpts := []registry.Option{registry.WithLogger(eng.logger)}
		if eng.actionTimeout > 0 {
			regOpts = append(regOpts, registry.WithTimeout(eng.actionTimeout))
		}
		eng.registry = registry.NewRegistry(regOpts...)
	}

	sessionOpts := []session.Option{
		session.WithLogger(eng.logger),
		session.WithClock(eng.now),
		session.WithConflictHook(eng.emitConflict),
	}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	if eng.lockTTL > 0 {
		sessionOpts = append(sessionOpts, session.WithLockTTL(eng.lockTTL))
	}
	eng.sessions = session.NewManager(eng.store, sessionOpts...)

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithClock(eng.now),
	}
	if eng.evaluator != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithConditionEvaluator(eng.evaluator))
	}
	if eng.interpolator != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithInterpolator(eng.interpolator))
	}
	eng.runtime = runtime.NewEngine(eng.registry, runtimeOpts...)

	eng.catalog = catalog.New(eng.source,
		catalog.WithLogger(eng.logger),
		catalog.WithReloadHook(eng.warnUnknownActions),
	)
	set, err := eng.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}
	if missing := set.UnknownActions(eng.registry.Has); eng.strictActions && len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredActions, strings.Join(missing, ", "))
	}
	return eng, nil
}

// HandleInboundEvent processes one inbound event for userID and returns the
// ordered replies. Validation and action failures are folded into the
// replies; only infrastructure errors (such as an unreachable store) are
// returned.
func (e *Engine) HandleInboundEvent(ctx context.Context, userID string, ev domain.IncomingEvent) ([]domain.OutgoingMessage, error) {
	if strings.TrimSpace(userID) == "" || ev == nil {
		return nil, ErrInvalidEvent
	}

	var out []domain.OutgoingMessage
	_, err := e.sessions.Update(ctx, userID, func(ctx context.Context, sess *domain.Session, fresh bool) (*domain.Session, error) {
		// Each attempt sees the latest generation.
		out = e.runtime.Process(ctx, e.catalog.Snapshot(), sess, fresh, ev)
		return sess, nil
	})

	if errors.Is(err, domain.ErrSessionConflict) {
		e.logger.Warn("Giving up after repeated session conflicts", "user_id", userID)
		return []domain.OutgoingMessage{domain.Text(e.catalog.Snapshot().Messages().Busy)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to process event for %s: %w", userID, err)
	}
	return out, nil
}

// Session returns the stored session of userID.
func (e *Engine) Session(ctx context.Context, userID string) (*domain.Session, error) {
	return e.sessions.Get(ctx, userID)
}

// ResetSession deletes the session of userID. The next event starts fresh.
func (e *Engine) ResetSession(ctx context.Context, userID string) error {
	return e.sessions.Delete(ctx, userID)
}

// Sessions lists the ids of stored sessions.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Reload reads and compiles the flow definitions again. On error the active
// generation is kept.
func (e *Engine) Reload(ctx context.Context) (*catalog.FlowSet, error) {
	return e.catalog.Load(ctx)
}

// warnUnknownActions runs after every successful load. Dispatching an
// unregistered action is recovered at runtime, so this is only logged.
func (e *Engine) warnUnknownActions(set *catalog.FlowSet) {
	for _, id := range set.UnknownActions(e.registry.Has) {
		e.logger.Warn("Flow definitions reference an unregistered action",
			"action_id", id,
			"generation", set.Generation(),
		)
	}
}

// WatchConfig reloads the definitions whenever the source changes, until ctx
// is done. It returns catalog.ErrNotWatchable for static sources.
func (e *Engine) WatchConfig(ctx context.Context) error {
	return e.catalog.Watch(ctx)
}

// Flows returns the active generation of definitions.
func (e *Engine) Flows() *catalog.FlowSet {
	return e.catalog.Snapshot()
}

// Registry returns the action registry, for registering handlers.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Source returns the configuration source the engine reads.
func (e *Engine) Source() ports.ConfigSource {
	return e.source
}

func (e *Engine) emitConflict(ctx context.Context, userID string) {
	if e.hooks.OnConflict != nil {
		e.hooks.OnConflict(ctx, &domain.EventBase{
			Timestamp: e.now(),
			Type:      domain.EventConflict,
			UserID:    userID,
		})
	}
}

var _ ports.ConversationEngine = (*Engine)(nil)
var _ ports.SessionInspector = (*Engine)(nil)

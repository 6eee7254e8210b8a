package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	astrobot "github.com/jammysunshine/astro-whatsapp-bot"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/builtin"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/config"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/file"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/memory"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/process"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/redis"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/sqlstore"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/observability"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/persistence/middleware"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stack is an engine built from configuration together with the
// infrastructure it owns.
type Stack struct {
	Engine   *astrobot.Engine
	Dedup    ports.Deduplicator
	Redactor *middleware.Redactor
	Metrics  *observability.Metrics

	gatherer prometheus.Gatherer
	pruner   pruner
	closers  []func() error
}

type pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// MetricsHandler serves the collectors of the stack.
func (s *Stack) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

// Close releases the backends, most recently opened first.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// backend is what a session backend contributes to the stack.
type backend struct {
	store  ports.SessionStore
	locker ports.DistributedLocker
	dedup  ports.Deduplicator
	pruner pruner
	close  func() error
}

// BuildEngine wires the engine described by cfg: the session backend, at-rest
// encryption, the built-in actions, metrics and log hooks.
func BuildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...astrobot.Option) (*Stack, error) {
	stack := &Stack{}

	be, err := openBackend(ctx, cfg.Session, logger)
	if err != nil {
		return nil, err
	}
	if be.close != nil {
		stack.closers = append(stack.closers, be.close)
	}
	stack.pruner = be.pruner
	if cfg.Dedup.Enabled {
		stack.Dedup = be.dedup
	}

	store := be.store
	if cfg.Session.EncryptionKey != "" {
		mw, err := encryption(cfg.Session)
		if err != nil {
			_ = stack.Close()
			return nil, err
		}
		store = middleware.Chain(store, mw)
	}

	stack.Redactor, err = middleware.NewRedactor(cfg.Session.RedactPatterns)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}

	reg := registry.NewRegistry(registry.WithLogger(logger), registry.WithTimeout(cfg.Actions.Timeout))
	if err := builtin.Register(reg); err != nil {
		_ = stack.Close()
		return nil, err
	}
	if err := registerProcesses(reg, cfg.Actions, logger); err != nil {
		_ = stack.Close()
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stack.gatherer = promReg
	stack.Metrics = observability.NewMetrics(promReg)

	engineOpts := []astrobot.Option{
		astrobot.WithStore(store),
		astrobot.WithRegistry(reg),
		astrobot.WithLogger(logger),
		astrobot.WithStrictActions(cfg.Actions.Strict),
		astrobot.WithLifecycleHooks(observability.Combine(stack.Metrics.Hooks(), observability.LogHooks(logger))),
	}
	if be.locker != nil {
		engineOpts = append(engineOpts, astrobot.WithLocker(be.locker), astrobot.WithLockTTL(cfg.Session.LockTTL))
	}
	engineOpts = append(engineOpts, opts...)

	stack.Engine, err = astrobot.New(ctx, cfg.Flows.Path, engineOpts...)
	if err != nil {
		_ = stack.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return stack, nil
}

// registerProcesses binds the external commands of cfg.Processes.
func registerProcesses(reg *registry.Registry, cfg config.ActionsConfig, logger *slog.Logger) error {
	if cfg.Processes == "" {
		return nil
	}
	actions, err := process.LoadActions(cfg.Processes)
	if err != nil {
		return err
	}
	runner := process.NewRunner(
		process.WithActions(actions),
		process.WithBaseDir(cfg.WorkDir),
		process.WithLogger(logger),
	)
	if err := runner.RegisterAll(reg); err != nil {
		return fmt.Errorf("process actions: %w", err)
	}
	if ids := runner.IDs(); len(ids) > 0 {
		logger.Info("Registered process actions", "count", len(ids), "file", cfg.Processes)
	}
	return nil
}

func openBackend(ctx context.Context, cfg config.SessionConfig, logger *slog.Logger) (backend, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return backend{
			store: memory.NewStore(memory.WithTTL(cfg.TTL)),
			dedup: memory.NewDeduplicator(),
		}, nil

	case config.BackendFile:
		return backend{
			store: file.NewStore(cfg.DSN, file.WithTTL(cfg.TTL)),
			dedup: memory.NewDeduplicator(),
		}, nil

	case config.BackendRedis:
		client, err := redis.Open(ctx, cfg.DSN)
		if err != nil {
			return backend{}, err
		}
		store := redis.NewFromClient(client, redis.WithTTL(cfg.TTL), redis.WithPrefix(cfg.Prefix))
		return backend{
			store:  store,
			locker: redis.NewLocker(client, cfg.Prefix),
			dedup:  redis.NewDeduplicator(client, cfg.Prefix),
			close:  store.Close,
		}, nil

	case config.BackendSQLite, config.BackendPostgres:
		driver := sqlstore.DriverSQLite
		if cfg.Backend == config.BackendPostgres {
			driver = sqlstore.DriverPostgres
		}
		store, err := sqlstore.Open(ctx, driver, cfg.DSN, sqlstore.WithTTL(cfg.TTL), sqlstore.WithLogger(logger))
		if err != nil {
			return backend{}, err
		}
		return backend{store: store, dedup: store, pruner: store, close: store.Close}, nil
	}
	return backend{}, fmt.Errorf("unknown session backend %q", cfg.Backend)
}

func encryption(cfg config.SessionConfig) (middleware.Middleware, error) {
	active, err := middleware.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("session.encryption_key: %w", err)
	}
	encCfg := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range cfg.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("session.fallback_keys[%d]: %w", i, err)
		}
		encCfg.FallbackKeys = append(encCfg.FallbackKeys, key)
	}
	return middleware.NewEncryptionMiddleware(encCfg)
}

// Package catalog is the flow and menu registry. It loads raw documents from a
// configuration source, compiles them into an immutable FlowSet and publishes
// it atomically: readers always observe either the previous or the new
// complete generation, never a partial one.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
)

// ErrNotLoaded is returned by lookups before the first successful Load.
var ErrNotLoaded = errors.New("catalog not loaded")

// ErrNotWatchable is returned by Watch when the source cannot signal changes.
var ErrNotWatchable = errors.New("configuration source does not support watching")

// Catalog holds the current generation of definitions.
type Catalog struct {
	source  ports.ConfigSource
	current atomic.Pointer[FlowSet]
	gen     atomic.Uint64

	loadMu   sync.Mutex // serializes loads; reads never take it
	logger   *slog.Logger
	onReload func(*FlowSet)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used to report reloads.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = l
	}
}

// WithReloadHook registers a callback invoked after every successful load.
func WithReloadHook(fn func(*FlowSet)) Option {
	return func(c *Catalog) {
		c.onReload = fn
	}
}

// New creates a catalog reading from source. Call Load before use.
func New(source ports.ConfigSource, opts ...Option) *Catalog {
	c := &Catalog{
		source: source,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads and compiles the source, then publishes the result.
// On failure the previous generation stays active and the error (a
// *schema.SchemaError for invalid definitions) is returned.
func (c *Catalog) Load(ctx context.Context) (*FlowSet, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	docs, err := c.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow configuration: %w", err)
	}

	set, err := Compile(docs...)
	if err != nil {
		return nil, err
	}

	set.generation = c.gen.Add(1)
	c.current.Store(set)

	c.logger.Info("Flow catalog loaded",
		"generation", set.generation,
		"flows", len(set.flows),
		"menus", len(set.menus),
	)
	for _, w := range Lint(set) {
		c.logger.Warn("Flow catalog lint", "warning", w)
	}
	if c.onReload != nil {
		c.onReload(set)
	}
	return set, nil
}

// Snapshot returns the current generation, or nil before the first Load.
// Callers should take one snapshot per unit of work.
func (c *Catalog) Snapshot() *FlowSet {
	return c.current.Load()
}

// GetFlow looks a flow up in the current generation.
func (c *Catalog) GetFlow(id string) (*domain.FlowDefinition, error) {
	set := c.Snapshot()
	if set == nil {
		return nil, ErrNotLoaded
	}
	return set.Flow(id)
}

// GetMenu looks a menu up in the current generation.
func (c *Catalog) GetMenu(id string) (*domain.MenuDefinition, error) {
	set := c.Snapshot()
	if set == nil {
		return nil, ErrNotLoaded
	}
	return set.Menu(id)
}

// Watch reloads the catalog whenever the source signals a change, until ctx
// is done. Rejected reloads are logged and the active generation is kept.
func (c *Catalog) Watch(ctx context.Context) error {
	w, ok := c.source.(ports.Watchable)
	if !ok {
		return ErrNotWatchable
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch flow configuration: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, open := <-changes:
			if !open {
				return nil
			}
			if _, err := c.Load(ctx); err != nil {
				c.logger.Error("Flow catalog reload rejected; keeping previous generation", "err", err)
			}
		}
	}
}

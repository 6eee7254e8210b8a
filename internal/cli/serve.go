package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/config"
	httpadapter "github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/http"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/twilio"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"golang.org/x/sync/errgroup"
)

// PruneInterval is how often expired rows are deleted from SQL backends.
const PruneInterval = time.Hour

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second

// NewHTTPHandler builds the webhook and API handler described by cfg.
func NewHTTPHandler(stack *Stack, cfg config.Config, logger *slog.Logger) (http.Handler, error) {
	opts := []httpadapter.Option{
		httpadapter.WithLogger(logger),
		httpadapter.WithWebhookPath(cfg.HTTP.WebhookPath),
		httpadapter.WithAPIToken(cfg.HTTP.APIToken),
		httpadapter.WithRedactor(stack.Redactor),
		httpadapter.WithMetricsHandler(stack.MetricsHandler()),
	}
	if stack.Dedup != nil {
		opts = append(opts, httpadapter.WithDeduplicator(stack.Dedup, cfg.Dedup.TTL))
	}

	if cfg.TwilioEnabled() {
		sender, err := twilio.NewSender(
			twilio.WithAccountSID(cfg.Twilio.AccountSID),
			twilio.WithAuthToken(cfg.Twilio.AuthToken),
			twilio.WithFrom(cfg.Twilio.From),
			twilio.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpadapter.WithSender(sender))
	}
	if cfg.Twilio.ValidateSignature {
		if cfg.Twilio.AuthToken == "" {
			logger.Warn("Webhook signature validation is enabled but no Twilio auth token is set; skipping validation")
		} else {
			opts = append(opts, httpadapter.WithSignatureValidator(
				twilio.NewSignatureValidator(cfg.Twilio.AuthToken), cfg.HTTP.PublicURL))
		}
	}

	return httpadapter.NewHandler(stack.Engine, opts...), nil
}

// Serve runs the HTTP server, the flow watcher and the SQL pruner until ctx
// is done or one of them fails.
func Serve(ctx context.Context, stack *Stack, cfg config.Config, logger *slog.Logger) error {
	handler, err := NewHTTPHandler(stack, cfg, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting astrobot server", "addr", srv.Addr, "flows", cfg.Flows.Path,
			"backend", cfg.Session.Backend, "generation", stack.Engine.Flows().Generation())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			return srv.Close()
		}
		logger.Info("astrobot server stopped gracefully")
		return nil
	})

	if cfg.Flows.Watch {
		g.Go(func() error {
			err := stack.Engine.WatchConfig(ctx)
			if errors.Is(err, catalog.ErrNotWatchable) {
				logger.Warn("Flow source cannot be watched; hot reload disabled")
				return nil
			}
			return err
		})
	}

	if stack.pruner != nil {
		g.Go(func() error {
			runPruner(ctx, stack.pruner, PruneInterval, logger)
			return nil
		})
	}

	return g.Wait()
}

func runPruner(ctx context.Context, p pruner, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Prune(ctx)
			if err != nil {
				logger.Error("Pruning expired sessions failed", "err", err)
				continue
			}
			logger.Debug("Pruned expired rows", "count", n)
		}
	}
}

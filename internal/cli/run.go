package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	astrobot "github.com/jammysunshine/astro-whatsapp-bot"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/presentation/tui"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
)

// ChatOptions configures the chat command.
type ChatOptions struct {
	UserID   string
	Headless bool
	// Watch reloads the flow definitions while chatting.
	Watch bool
	// Fresh deletes the stored session before the first message.
	Fresh bool

	Input  io.Reader
	Output io.Writer
}

// RunChat simulates a WhatsApp conversation on the terminal until EOF,
// "exit" or an interrupt.
func RunChat(ctx context.Context, eng *astrobot.Engine, opts ChatOptions, logger *slog.Logger) error {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	if opts.Fresh {
		if err := eng.ResetSession(sigCtx, opts.UserID); err != nil {
			return err
		}
	}

	r := astrobot.NewRunner(opts.UserID)
	r.Input = NewInterruptibleReader(opts.Input, sigCtx.Done())
	r.Output = opts.Output
	r.Headless = opts.Headless

	if out, ok := opts.Output.(*os.File); ok && !opts.Headless {
		if tui.IsTerminal(out) {
			tui.PrintBanner(out)
		}
		r.Renderer = tui.NewRenderer(out)
	}

	if opts.Watch {
		go func() {
			err := eng.WatchConfig(sigCtx)
			switch {
			case errors.Is(err, catalog.ErrNotWatchable):
				logger.Warn("Flow source cannot be watched; hot reload disabled")
			case err != nil && !errors.Is(err, context.Canceled):
				logger.Error("Flow watcher stopped", "err", err)
			}
		}()
		if !opts.Headless {
			printSystemMessage(opts.Output, "Watching flow definitions for changes.")
		}
	}

	err := r.Run(sigCtx, eng)
	if sigCtx.Signal() != nil && !opts.Headless {
		printSystemMessage(opts.Output, "Interrupted.")
	}
	return handleExecutionError(err)
}

package main

import (
	"context"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and API server",
	Long: `Starts the engine behind an HTTP server exposing the Twilio WhatsApp
webhook, the JSON API, session inspection and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, stack, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			cfg.Flows.Watch = true
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()
		return cli.Serve(sigCtx, stack, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides http.addr)")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload flow definitions when they change")
}

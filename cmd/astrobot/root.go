package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/cli"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "astrobot",
	Short: "astrobot runs menu-driven WhatsApp conversations",
	Long: `astrobot is a conversation flow engine for WhatsApp bots.
Flows and menus are declared in YAML or JSON files; each user's position is
kept in a session store so that conversations survive restarts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to astrobot.yaml")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a .env file (ignored when missing)")
	rootCmd.PersistentFlags().String("flows", "", "Directory or file with flow definitions (overrides flows.path)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides log.level)")
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return cfg, err
	}
	if flows, _ := cmd.Flags().GetString("flows"); flows != "" {
		cfg.Flows.Path = flows
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, cfg.Validate()
}

// setup loads the configuration and builds the engine stack.
func setup(cmd *cobra.Command) (config.Config, *cli.Stack, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cfg, nil, nil, err
	}
	logger, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return cfg, nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stack, err := cli.BuildEngine(ctx, cfg, logger)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, stack, logger, nil
}

package main

import (
	"github.com/jammysunshine/astro-whatsapp-bot/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flows-path]",
	Short: "Check flow definitions for consistency",
	Long: `Loads and compiles the flow definitions, reporting every schema issue,
dangling transition target, unreachable step and action without a handler.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := cfg.Flows.Path
		if len(args) > 0 {
			path = args[0]
		}
		if strict, _ := cmd.Flags().GetBool("strict"); strict {
			cfg.Actions.Strict = true
		}

		_, err = cli.ValidateFlows(cmd.Context(), path, cfg.Actions, cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Fail on actions without a handler")
}

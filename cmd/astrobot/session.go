package main

import (
	"github.com/jammysunshine/astro-whatsapp-bot/internal/cli"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored sessions",
	Long:  `List, inspect, and remove sessions in the configured session backend.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all active sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, stack, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()
		return cli.ListSessions(cmd.Context(), stack.Engine, cmd.OutOrStdout())
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <user-id>",
	Short: "Inspect the state of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, stack, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()
		return cli.InspectSession(cmd.Context(), stack.Engine, stack.Redactor, args[0], cmd.OutOrStdout())
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <user-id>",
	Short: "Delete a session; the user restarts at the main menu",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, stack, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()
		return cli.RemoveSession(cmd.Context(), stack.Engine, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}

package main

import (
	"github.com/jammysunshine/astro-whatsapp-bot/internal/cli"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the bot in the terminal",
	Long: `Simulates a WhatsApp conversation on the terminal. Type text to reply,
'#<option-id>' to pick an option, and 'exit' to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, stack, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		opts := cli.ChatOptions{}
		opts.UserID, _ = cmd.Flags().GetString("user")
		opts.Headless, _ = cmd.Flags().GetBool("headless")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.Input = cmd.InOrStdin()
		opts.Output = cmd.OutOrStdout()

		return cli.RunChat(cmd.Context(), stack.Engine, opts, logger)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("user", "u", "whatsapp:+10000000000", "Simulated sender id")
	chatCmd.Flags().Bool("headless", false, "No banner or prompts, plain output")
	chatCmd.Flags().BoolP("watch", "w", false, "Reload flow definitions when they change")
	chatCmd.Flags().Bool("fresh", false, "Delete the stored session before starting")
}

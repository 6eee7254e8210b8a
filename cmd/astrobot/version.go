package main

import (
	"fmt"

	astrobot "github.com/jammysunshine/astro-whatsapp-bot"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of astrobot",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "astrobot version %s\n", astrobot.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

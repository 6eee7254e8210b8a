package main

import (
	"context"
	"fmt"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/presentation/graph"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/file"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [flows-path]",
	Short: "Export the menus and flows as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph TD) of the menus and flows.
With --session, the position of that user is highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flowID, _ := cmd.Flags().GetString("flow")
		userID, _ := cmd.Flags().GetString("session")
		opts := graph.Options{FlowID: flowID}

		var set *catalog.FlowSet
		if userID != "" {
			_, stack, _, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()
			sess, err := stack.Engine.Session(cmd.Context(), userID)
			if err != nil {
				return err
			}
			set = stack.Engine.Flows()
			opts.Overlay = graph.OverlayFor(sess)
		} else {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path := cfg.Flows.Path
			if len(args) > 0 {
				path = args[0]
			}
			if set, err = compile(cmd.Context(), path); err != nil {
				return err
			}
		}

		out, err := graph.GenerateMermaid(set, opts)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func compile(ctx context.Context, path string) (*catalog.FlowSet, error) {
	docs, err := file.NewSource(path).Load(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Compile(docs...)
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("flow", "", "Only draw this flow")
	graphCmd.Flags().String("session", "", "Highlight the position of this user")
}

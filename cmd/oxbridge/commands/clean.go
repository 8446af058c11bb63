package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/oxbridge/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove build records and bridge-owned target directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, _ := cmd.Flags().GetBool("targets")
			all, _ := cmd.Flags().GetBool("all")

			opts := app.CleanOptions{}

			switch {
			case all:
				opts.Records = true
				opts.Targets = true
			case targets:
				opts.Targets = true
			default:
				opts.Records = true
			}

			return c.app.Clean(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolP("targets", "t", false, "Remove the target directories the driver built into")
	cmd.Flags().BoolP("all", "a", false, "Remove build records and target directories")

	return cmd
}

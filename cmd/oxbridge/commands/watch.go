package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/oxbridge/internal/app"
)

func (c *CLI) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [imports...]",
		Short: "Build imports and rebuild them whenever their inputs change",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(cmd, args)
			if err != nil {
				return err
			}
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			debounce, _ := cmd.Flags().GetDuration("debounce")

			out := cmd.OutOrStdout()
			return c.app.Watch(cmd.Context(), app.WatchOptions{
				BuildOptions: opts,
				Debounce:     debounce,
				OnBuild: func(outcomes []app.Outcome, _ error) {
					_ = renderOutcomes(out, format, outcomes)
				},
			})
		},
	}
	addConfigFlags(cmd)
	addFormatFlag(cmd)
	cmd.Flags().IntP("jobs", "j", 0, "Number of imports to build at once (default: from configuration)")
	cmd.Flags().Duration("debounce", 0, "How long changes must settle before rebuilding (default 200ms)")
	return cmd
}

package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [imports...]",
		Short: "Print the driver invocations without running them",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			planned, err := c.app.Plan(cmd.Context(), args, overrides(cmd))
			if err != nil {
				return err
			}
			return renderPlans(cmd.OutOrStdout(), format, planned)
		},
	}
	addConfigFlags(cmd)
	addFormatFlag(cmd)
	return cmd
}

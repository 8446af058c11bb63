package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/oxbridge/internal/build"
)

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmdo := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(cmdo, "oxbridge version "+build.Summary())
		},
	}
}

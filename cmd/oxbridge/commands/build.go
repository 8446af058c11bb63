package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/oxbridge/internal/app"
	"go.trai.ch/zerr"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [imports...]",
		Short: "Build imports and register their artifacts",
		Long: "Build the named imports, or every import when none is named, and print the graph nodes " +
			"their artifacts were registered as.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(cmd, args)
			if err != nil {
				return err
			}
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			outcomes, buildErr := c.app.Build(cmd.Context(), opts)
			if len(outcomes) > 0 {
				if err := renderOutcomes(cmd.OutOrStdout(), format, outcomes); err != nil {
					return err
				}
			}
			return buildErr
		},
	}
	addConfigFlags(cmd)
	addFormatFlag(cmd)
	cmd.Flags().IntP("jobs", "j", 0, "Number of imports to build at once (default: from configuration)")
	return cmd
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("profile", "", "Build profile: debug, release, or a custom profile name")
	cmd.Flags().String("target", "", "Target triple or path to a custom target specification")
	cmd.Flags().StringSliceP("features", "F", nil, "Features to enable, replacing the configured ones")
	cmd.Flags().Bool("no-default-features", false, "Do not enable the default feature")
	cmd.Flags().Bool("host", false, "Build as host tools for the build machine")
}

func overrides(cmd *cobra.Command) app.Overrides {
	profile, _ := cmd.Flags().GetString("profile")
	target, _ := cmd.Flags().GetString("target")
	noDefault, _ := cmd.Flags().GetBool("no-default-features")
	host, _ := cmd.Flags().GetBool("host")

	o := app.Overrides{
		Profile:           profile,
		Target:            target,
		NoDefaultFeatures: noDefault,
		Host:              host,
	}
	if cmd.Flags().Changed("features") {
		features, _ := cmd.Flags().GetStringSlice("features")
		o.Features = append([]string{}, features...)
	}
	return o
}

func buildOptions(cmd *cobra.Command, args []string) (app.BuildOptions, error) {
	jobs, _ := cmd.Flags().GetInt("jobs")
	if jobs < 0 {
		return app.BuildOptions{}, zerr.With(zerr.New("--jobs must not be negative"), "jobs", jobs)
	}
	return app.BuildOptions{
		Imports:   args,
		Overrides: overrides(cmd),
		Jobs:      jobs,
	}, nil
}

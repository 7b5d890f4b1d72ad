package cli

import (
	"github.com/spf13/cobra"

	"github.com/platformatic/desk/internal/engine"
)

// newInfraCommand creates the "infra" command group.
func newInfraCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infra",
		Short: "Manage dependency charts",
	}

	install := &cobra.Command{
		Use:   "install",
		Short: "Install the dependency charts selected by the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			dctx, err := loadContextFromCmd(opts, cmd, "infra install")
			if err != nil {
				return err
			}

			results, err := engine.NewEngine(opts.runner(logger), logger).InstallInfra(cmd.Context(), dctx)
			for _, r := range results {
				if r.Err == nil {
					logger.Info("chart installed", "chart", r.Key, "release", r.Release, "attempts", r.Attempts)
				}
			}
			return err
		},
	}
	addVarsFlags(install)

	cmd.AddCommand(install)
	return cmd
}

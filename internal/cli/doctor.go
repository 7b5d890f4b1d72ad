package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platformatic/desk/internal/doctor"
)

// newDoctorCommand creates the "doctor" subcommand that checks the required tools.
func newDoctorCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the required external tools are installed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			logger.Info("checking required tools")

			results := doctor.Check(cmd.Context(), opts.runner(logger), doctor.RequiredTools)
			report, ok := doctor.Report(results)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), report)
			if !ok {
				return errors.New("some required tools are missing or outdated; install them to use desk")
			}
			logger.Info("all required tools are installed")
			return nil
		},
	}
}

// Package cli defines the command-line interface for desk.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/logging"
	"github.com/platformatic/desk/internal/runner"
)

// Options stores global CLI options shared between commands.
type Options struct {
	Profile  string
	LogLevel logging.Level
	Settings config.Settings
	// Runner executes external tools. Nil uses runner.NewExec with the command logger.
	Runner runner.Runner
	// LogOutput receives log records. Nil means stderr.
	LogOutput io.Writer
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootCmd := newRootCommand(&Options{LogLevel: logging.LevelInfo}, logger)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "desk",
		Short:         "desk runs versioned local Platformatic environments",
		Long:          "desk provisions a local cluster from a profile, installs its dependency charts and the platform services, and deploys applications into it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			opts.Settings = settings

			levelValue := cmd.Flag("log-level").Value.String()
			if !cmd.Flags().Changed("log-level") {
				levelValue = settings.LogLevel
			}
			level := logging.ParseLevel(levelValue)
			opts.LogLevel = level
			logger = logging.NewLogger(opts.LogOutput, level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))

			if opts.Profile == "" && settings.ProfilePath == "" {
				opts.Profile = rootEnvDefaults().Profile
			}
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Profile, "profile", "p", "", "Profile name or path to a profile document")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newClusterCommand(opts),
		newInfraCommand(opts),
		newDeployCommand(opts),
		newProfileCommand(opts),
		newDoctorCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}

func (o *Options) runner(logger *slog.Logger) runner.Runner {
	if o.Runner != nil {
		return o.Runner
	}
	return runner.NewExec(logger)
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/engine"
	"github.com/platformatic/desk/internal/status"
)

// newClusterCommand creates the "cluster" command group.
func newClusterCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Manage the local cluster of a profile",
	}
	cmd.AddCommand(
		newClusterUpCommand(opts),
		newClusterDownCommand(opts),
		newClusterStatusCommand(opts),
	)
	return cmd
}

func newClusterUpCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Create the cluster and install dependencies and platform services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			dctx, err := loadContextFromCmd(opts, cmd, config.CommandClusterUp)
			if err != nil {
				return err
			}

			eng := engine.NewEngine(opts.runner(logger), logger)
			res, err := eng.Up(cmd.Context(), dctx)
			if err != nil {
				return err
			}

			logger.Info("cluster ready", "cluster", dctx.ClusterName, "kube_context", dctx.KubeContext, "run_dir", dctx.RunDir.Path())
			if res.Status.Install != nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Status.Install.Command)
			}
			return nil
		},
	}
	addVarsFlags(cmd)
	return cmd
}

func newClusterDownCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Delete the cluster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			dctx, err := loadContextFromCmd(opts, cmd, "cluster down")
			if err != nil {
				return err
			}
			return engine.NewEngine(opts.runner(logger), logger).Down(cmd.Context(), dctx)
		},
	}
	addVarsFlags(cmd)
	return cmd
}

func newClusterStatusCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print connection details of the running dependencies as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			dctx, err := loadContextFromCmd(opts, cmd, "cluster status")
			if err != nil {
				return err
			}

			st, err := engine.NewEngine(opts.runner(logger), logger).Status(cmd.Context(), dctx)
			if err != nil {
				return err
			}
			return printStatus(cmd, st)
		},
	}
	addVarsFlags(cmd)
	return cmd
}

func printStatus(cmd *cobra.Command, st status.ClusterStatus) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return err
	}
	if st.Error != "" {
		return fmt.Errorf("cluster status: %s", st.Error)
	}
	return nil
}

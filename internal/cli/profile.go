package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platformatic/desk/internal/config"
)

// newProfileCommand creates the "profile" command group.
func newProfileCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect available profiles",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the profiles in the profile directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := config.ListProfiles(opts.Settings.ProfileDir)
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "no profiles found in %s\n", opts.Settings.ProfileDir)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tVERSION\tDESCRIPTION")
			for _, p := range profiles {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Version, p.Description)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(list)
	return cmd
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/env"
)

// parsePlaceholderVars merges --var-file and --vars into the placeholder values;
// inline vars win.
func parsePlaceholderVars(cmd *cobra.Command) (env.Vars, error) {
	inlineVars, err := env.ParseInlineVars(cmd.Flag("vars").Value.String())
	if err != nil {
		return nil, err
	}

	fileVars := env.Vars{}
	if varFile := cmd.Flag("var-file").Value.String(); varFile != "" {
		fileVars, err = env.LoadEnvFile(varFile)
		if err != nil {
			return nil, err
		}
	}
	return env.Merge(fileVars, inlineVars), nil
}

// loadContextFromCmd assembles the Context for the selected profile.
func loadContextFromCmd(opts *Options, cmd *cobra.Command, command string) (*config.Context, error) {
	vars, err := parsePlaceholderVars(cmd)
	if err != nil {
		return nil, err
	}
	return config.LoadContext(cmd.Context(), opts.Profile, config.LoadOptions{
		Command:  command,
		Vars:     vars,
		Logger:   LoggerFromContext(cmd.Context()),
		Settings: opts.Settings,
	})
}

func addVarsFlags(cmd *cobra.Command) {
	cmd.Flags().String("vars", "", "Placeholder values in k=v,k2=v2 format")
	cmd.Flags().String("var-file", "", "Path to an ENV file with placeholder values")
}

package cli

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platformatic/desk/internal/deploy"
	"github.com/platformatic/desk/internal/engine"
	"github.com/platformatic/desk/internal/env"
)

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)

// newDeployCommand creates the "deploy" subcommand that runs an application image in the cluster.
func newDeployCommand(opts *Options) *cobra.Command {
	var (
		image     string
		name      string
		namespace string
		prefix    string
		envFile   string
		envVars   string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy an application image behind the cluster gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			defaults := deployEnv{}
			if err := parseEnv(&defaults); err != nil {
				return err
			}
			if namespace == "" {
				namespace = defaults.Namespace
			}
			if envFile == "" {
				envFile = defaults.EnvFile
			}

			if image == "" {
				return fmt.Errorf("missing --image")
			}
			if name == "" {
				name = AppName(image)
			}

			appEnv := env.Vars{}
			if envFile != "" {
				fileVars, err := env.LoadEnvFile(envFile)
				if err != nil {
					return err
				}
				appEnv = fileVars
			}
			inline, err := env.ParseInlineVars(envVars)
			if err != nil {
				return err
			}
			appEnv = env.Merge(appEnv, inline)

			dctx, err := loadContextFromCmd(opts, cmd, "deploy")
			if err != nil {
				return err
			}

			app := deploy.App{
				Name:      name,
				Image:     image,
				Namespace: namespace,
				Env:       appEnv,
				Prefix:    prefix,
			}
			res, err := engine.NewEngine(opts.runner(logger), logger).Deploy(cmd.Context(), dctx, app, dryRun)
			if err != nil {
				return err
			}
			for _, f := range res.Files {
				logger.Debug("manifest written", "path", f)
			}
			if dryRun {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), dctx.RunDir.Path())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&image, "image", "i", "", "Application image reference")
	cmd.Flags().StringVar(&name, "name", "", "Application name (defaults to the image repository name)")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Target namespace (default platformatic)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Route path prefix (defaults to the application name)")
	cmd.Flags().StringVarP(&envFile, "envfile", "e", "", "ENV file with application environment variables")
	cmd.Flags().StringVar(&envVars, "env", "", "Application environment variables in k=v,k2=v2 format")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write manifests to the run directory without applying them")
	addVarsFlags(cmd)

	return cmd
}

// AppName derives a DNS-safe application name from an image reference.
func AppName(image string) string {
	ref := image
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	base := path.Base(ref)
	if i := strings.LastIndex(base, ":"); i >= 0 {
		base = base[:i]
	}
	name := strings.Trim(invalidNameChars.ReplaceAllString(strings.ToLower(base), "-"), "-")
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}
	return name
}

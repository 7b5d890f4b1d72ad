// Package config assembles the immutable per-invocation Context from a profile,
// its version-paired config document and the captured secrets.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/platformatic/desk/internal/env"
	"github.com/platformatic/desk/internal/logging"
	"github.com/platformatic/desk/internal/rundir"
	"github.com/platformatic/desk/internal/schema"
)

// ConfigFile is the config document name inside a versioned config directory.
const ConfigFile = "config.yaml"

// ClusterPrefix prefixes every cluster name created by desk.
const ClusterPrefix = "plt-"

// CommandClusterUp is the command name that triggers the hot-reload source check.
const CommandClusterUp = "cluster up"

// Context is the fully resolved input of every operation within one invocation.
// It is built once by LoadContext and must be treated as read-only.
type Context struct {
	// Name is the profile name.
	Name string
	// Version is the profile schema version.
	Version int
	// ProfilePath is the absolute profile document path.
	ProfilePath string
	// ConfigDir is the versioned directory holding config.yaml and chart overrides.
	ConfigDir string
	// RunDir receives every generated artifact before it is applied.
	RunDir *rundir.Dir
	// Cluster is the merged cluster specification.
	Cluster ClusterSpec
	// Dependencies holds the charts selected by the profile, keyed by chart key.
	Dependencies map[string]Dependency
	// Charts is every chart the config declares, selected or not.
	Charts map[string]Dependency
	// Platformatic is the platform service specification.
	Platformatic schema.Platformatic
	// Secrets is the snapshot of the secrets file merged with the process environment.
	Secrets env.Vars
	// ClusterName is the provider-level cluster name.
	ClusterName string
	// KubeContext is the kubeconfig context that targets the cluster.
	KubeContext string
	// Apps is the known-apps registry.
	Apps []schema.App
	// Valkey lists the logical valkey databases declared by the config.
	Valkey []schema.ValkeyDatabase
}

// ClusterSpec is the merged cluster block.
type ClusterSpec struct {
	Provider   ProviderSpec
	Namespaces []string
}

// ProviderSpec identifies the cluster backend and carries its merged configuration.
// Only the block matching Name is set.
type ProviderSpec struct {
	Name string
	K3d  *schema.K3dConfig
}

// Dependency is a chart selected by the profile merged over its config defaults.
type Dependency struct {
	Key         string
	ReleaseName string
	Version     string
	Namespace   string
	Repo        string
	Location    string
	PltDefaults bool
	Overrides   map[string]any
}

// LoadOptions describes inputs of LoadContext that do not come from documents.
type LoadOptions struct {
	// Command is the invoked subcommand, e.g. "cluster up".
	Command string
	// Vars are placeholder values; they win over secrets with the same name.
	Vars env.Vars
	// Logger receives merge warnings. Nil discards them.
	Logger *slog.Logger
	// Settings are the DESK_* process settings.
	Settings Settings
	// Environ is the process environment snapshot. Nil means env.FromOS().
	Environ env.Vars
}

// ClusterName returns the provider-level cluster name for a profile.
func ClusterName(profile string) string {
	return ClusterPrefix + profile
}

// LoadContext resolves the profile named by arg, validates it together with its
// config, merges both, attaches secrets and creates the run directory.
func LoadContext(ctx context.Context, arg string, opts LoadOptions) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	ref, err := ResolveProfile(arg, opts.Settings)
	if err != nil {
		return nil, err
	}

	secrets, err := loadSecrets(opts)
	if err != nil {
		return nil, err
	}
	vars := env.Merge(secrets, opts.Vars)

	rawProfile, err := schema.ReadDocument(ref.Path, vars)
	if err != nil {
		return nil, err
	}
	profile, err := schema.ParseProfile(rawProfile)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", ref.Name, err)
	}

	configDir := filepath.Join(opts.Settings.ChartDir, fmt.Sprintf("v%d", profile.Version))
	absConfigDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolve config directory: %w", err)
	}
	rawConfig, err := schema.ReadDocument(filepath.Join(absConfigDir, ConfigFile), vars)
	if err != nil {
		return nil, err
	}
	cfg, err := schema.ParseConfig(rawConfig, profile.Version)
	if err != nil {
		return nil, err
	}

	cluster := mergeCluster(cfg.Cluster, profile.Cluster)
	deps, err := mergeDependencies(cfg.Dependencies, profile.Dependencies, logger)
	if err != nil {
		return nil, err
	}
	platformatic := shadowSecrets(profile.Platformatic, secrets, logger)

	platformatic, err = applyLocalSources(ref.Name, opts.Command, platformatic, secrets)
	if err != nil {
		return nil, err
	}

	runDir, err := rundir.Create(opts.Settings.RunBase, logger)
	if err != nil {
		return nil, err
	}

	clusterName := ClusterName(ref.Name)
	dctx := &Context{
		Name:         ref.Name,
		Version:      profile.Version,
		ProfilePath:  ref.Path,
		ConfigDir:    absConfigDir,
		RunDir:       runDir,
		Cluster:      cluster,
		Dependencies: deps,
		Charts:       chartCatalog(cfg.Dependencies),
		Platformatic: platformatic,
		Secrets:      secrets,
		ClusterName:  clusterName,
		KubeContext:  kubeContextFor(cluster.Provider.Name, clusterName),
		Apps:         cfg.Apps,
		Valkey:       cfg.Valkey,
	}
	logger.Debug("context loaded",
		"profile", dctx.Name,
		"version", dctx.Version,
		"provider", dctx.Cluster.Provider.Name,
		"dependencies", len(dctx.Dependencies),
		"run_dir", runDir.Path(),
	)
	return dctx, nil
}

func kubeContextFor(provider, clusterName string) string {
	switch provider {
	case schema.ProviderK3d:
		return "k3d-" + clusterName
	default:
		return clusterName
	}
}

// Chart returns the config declaration of a chart.
func (c *Context) Chart(key string) (Dependency, bool) {
	dep, ok := c.Charts[key]
	return dep, ok
}

// App returns the known app with the given name.
func (c *Context) App(name string) (schema.App, bool) {
	for _, app := range c.Apps {
		if app.Name == name {
			return app, true
		}
	}
	return schema.App{}, false
}

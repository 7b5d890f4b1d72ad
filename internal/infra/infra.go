// Package infra installs the dependency charts selected by a profile.
package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/yaml"

	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/helm"
	"github.com/platformatic/desk/internal/logging"
)

// OverridesFile is the values file name used for both chart defaults and user overrides.
const OverridesFile = "overrides.yaml"

// Helm is the subset of the helm client used by the installer.
type Helm interface {
	AddRepo(ctx context.Context, name, url string) error
	UpgradeInstall(ctx context.Context, rel helm.Release) (map[string]any, error)
}

// Waiter blocks until the resource a failed install needed is served by the cluster.
type Waiter interface {
	WaitReady(ctx context.Context, missing *helm.ResourceNotReadyError) error
}

// RetryPolicy bounds installs retried after a ResourceNotReadyError.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt; values below 1 mean DefaultMaxAttempts.
	MaxAttempts int
}

// DefaultMaxAttempts is used when RetryPolicy.MaxAttempts is unset.
const DefaultMaxAttempts = 5

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Installer registers chart repositories and installs charts concurrently.
type Installer struct {
	Helm   Helm
	Waiter Waiter
	Retry  RetryPolicy
	Logger *slog.Logger
}

// Repo is a chart repository registration.
type Repo struct {
	Name string
	URL  string
}

// Result reports the outcome of one chart install.
type Result struct {
	Key      string
	Release  string
	Attempts int
	Notes    map[string]any
	Err      error
}

// Install registers every distinct repository referenced by charts, then installs
// all charts concurrently. A failing chart does not cancel the others; every
// failure is returned joined once all installs have settled.
func (i *Installer) Install(ctx context.Context, charts map[string]config.Dependency, dctx *config.Context) ([]Result, error) {
	logger := i.logger()
	keys := sortedKeys(charts)

	repos := Repos(charts)
	logger.Info("adding helm repositories", "count", len(repos))
	var reg errgroup.Group
	for _, repo := range repos {
		repo := repo
		reg.Go(func() error {
			if err := i.Helm.AddRepo(ctx, repo.Name, repo.URL); err != nil {
				return fmt.Errorf("add repo %s: %w", repo.Name, err)
			}
			return nil
		})
	}
	if err := reg.Wait(); err != nil {
		return nil, err
	}

	logger.Info("installing helm charts", "count", len(keys))
	results := make([]Result, len(keys))
	var installs errgroup.Group
	for idx, key := range keys {
		idx, key := idx, key
		installs.Go(func() error {
			results[idx] = i.installChart(ctx, key, charts[key], dctx)
			return nil
		})
	}
	_ = installs.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("install %s: %w", r.Key, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

// Repos returns the distinct repositories referenced by charts. The repository
// name is the chart key prefix; the first chart wins for a shared URL.
func Repos(charts map[string]config.Dependency) []Repo {
	var out []Repo
	seen := map[string]struct{}{}
	for _, key := range sortedKeys(charts) {
		dep := charts[key]
		if dep.Repo == "" {
			continue
		}
		if _, ok := seen[dep.Repo]; ok {
			continue
		}
		seen[dep.Repo] = struct{}{}
		name, _, _ := strings.Cut(key, "/")
		out = append(out, Repo{Name: name, URL: dep.Repo})
	}
	return out
}

// BuildRelease resolves the helm release for a chart, writing user overrides to the run directory.
func BuildRelease(key string, dep config.Dependency, dctx *config.Context) (helm.Release, error) {
	rel := helm.Release{
		Name:      ReleaseName(key, dep),
		Chart:     key,
		Version:   dep.Version,
		Namespace: dep.Namespace,
	}
	if dep.Location != "" {
		rel.Chart = dep.Location
	}

	if dep.PltDefaults {
		parts := append([]string{dctx.ConfigDir}, strings.Split(key, "/")...)
		rel.ValuesFiles = append(rel.ValuesFiles, filepath.Join(append(parts, OverridesFile)...))
	}
	if len(dep.Overrides) > 0 {
		data, err := yaml.Marshal(dep.Overrides)
		if err != nil {
			return helm.Release{}, fmt.Errorf("encode overrides for %s: %w", key, err)
		}
		path, err := dctx.RunDir.Add(filepath.Join(key, OverridesFile), data)
		if err != nil {
			return helm.Release{}, err
		}
		rel.ValuesFiles = append(rel.ValuesFiles, path)
	}
	return rel, nil
}

// ReleaseName returns the configured release name or the chart key suffix.
func ReleaseName(key string, dep config.Dependency) string {
	if dep.ReleaseName != "" {
		return dep.ReleaseName
	}
	if _, suffix, ok := strings.Cut(key, "/"); ok {
		return suffix
	}
	return key
}

func (i *Installer) installChart(ctx context.Context, key string, dep config.Dependency, dctx *config.Context) Result {
	logger := i.logger().With("chart", key)
	result := Result{Key: key, Release: ReleaseName(key, dep)}

	rel, err := BuildRelease(key, dep, dctx)
	if err != nil {
		result.Err = err
		return result
	}

	maxAttempts := i.Retry.maxAttempts()
	for {
		result.Attempts++
		notes, err := i.Helm.UpgradeInstall(ctx, rel)
		if err == nil {
			result.Notes = notes
			logger.Info("chart installed", "release", rel.Name, "attempts", result.Attempts)
			return result
		}

		var notReady *helm.ResourceNotReadyError
		if !errors.As(err, &notReady) || i.Waiter == nil || result.Attempts >= maxAttempts {
			result.Err = err
			return result
		}
		logger.Warn("release waiting for resource kind",
			"release", notReady.Release,
			"kind", notReady.Kind,
			"api_version", notReady.APIVersion,
			"attempt", result.Attempts,
		)
		if werr := i.Waiter.WaitReady(ctx, notReady); werr != nil {
			result.Err = fmt.Errorf("wait for %s/%s: %w", notReady.APIVersion, notReady.Kind, werr)
			return result
		}
	}
}

func (i *Installer) logger() *slog.Logger {
	if i.Logger == nil {
		return logging.Discard()
	}
	return i.Logger
}

func sortedKeys(charts map[string]config.Dependency) []string {
	keys := make([]string, 0, len(charts))
	for k := range charts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

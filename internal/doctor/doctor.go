// Package doctor checks that the external tools desk drives are installed.
package doctor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platformatic/desk/internal/runner"
)

// Tool describes one required executable.
type Tool struct {
	Name         string
	VersionArgs  []string
	VersionRegex *regexp.Regexp
	InstallURL   string
	// MinVersion is optional; older versions are reported as outdated.
	MinVersion string
}

// RequiredTools are checked by Check.
var RequiredTools = []Tool{
	{
		Name:         "docker",
		VersionArgs:  []string{"--version"},
		VersionRegex: regexp.MustCompile(`Docker version ([\d.]+)`),
		InstallURL:   "https://docs.docker.com/get-docker/",
	},
	{
		Name:         "k3d",
		VersionArgs:  []string{"version"},
		VersionRegex: regexp.MustCompile(`k3d version v?([\d.]+)`),
		InstallURL:   "https://k3d.io/#installation",
		MinVersion:   "5.0.0",
	},
	{
		Name:         "kubectl",
		VersionArgs:  []string{"version", "--client", "--output=yaml"},
		VersionRegex: regexp.MustCompile(`gitVersion: v?([\d.]+)`),
		InstallURL:   "https://kubernetes.io/docs/tasks/tools/",
	},
	{
		Name:         "helm",
		VersionArgs:  []string{"version", "--short"},
		VersionRegex: regexp.MustCompile(`v?([\d.]+)`),
		InstallURL:   "https://helm.sh/docs/intro/install/",
		MinVersion:   "3.8.0",
	},
}

// UnknownVersion is reported when the version output does not match.
const UnknownVersion = "unknown"

// Result is the outcome of one tool check.
type Result struct {
	Name       string
	Installed  bool
	Version    string
	InstallURL string
	// Outdated is set when Version is below the tool's MinVersion.
	Outdated   bool
	MinVersion string
}

// Check runs every tool check concurrently and returns results in tool order.
func Check(ctx context.Context, r runner.Runner, tools []Tool) []Result {
	results := make([]Result, len(tools))
	var g errgroup.Group
	for i, tool := range tools {
		i, tool := i, tool
		g.Go(func() error {
			results[i] = checkTool(ctx, r, tool)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func checkTool(ctx context.Context, r runner.Runner, tool Tool) Result {
	res, err := r.Run(ctx, tool.Name, tool.VersionArgs...)
	if err != nil {
		return Result{Name: tool.Name, InstallURL: tool.InstallURL}
	}
	version := UnknownVersion
	if m := tool.VersionRegex.FindStringSubmatch(res.Output()); len(m) > 1 {
		version = m[1]
	}
	out := Result{Name: tool.Name, Installed: true, Version: version, InstallURL: tool.InstallURL, MinVersion: tool.MinVersion}
	out.Outdated = outdated(version, tool.MinVersion)
	return out
}

func outdated(version, minimum string) bool {
	if minimum == "" || version == UnknownVersion {
		return false
	}
	v, err := semver.NewVersion(strings.TrimSuffix(version, "."))
	if err != nil {
		return false
	}
	return v.LessThan(semver.MustParse(minimum))
}

// Report renders results one line per tool and reports whether every tool is usable.
func Report(results []Result) (string, bool) {
	lines := make([]string, 0, len(results))
	ok := true
	for _, r := range results {
		switch {
		case !r.Installed:
			ok = false
			lines = append(lines, fmt.Sprintf("✗ %s - Install: %s", r.Name, r.InstallURL))
		case r.Outdated:
			ok = false
			lines = append(lines, fmt.Sprintf("✗ %s (%s) - requires %s or newer: %s", r.Name, r.Version, r.MinVersion, r.InstallURL))
		default:
			lines = append(lines, fmt.Sprintf("✓ %s (%s)", r.Name, r.Version))
		}
	}
	return strings.Join(lines, "\n"), ok
}

// Missing returns the results of tools that are not installed.
func Missing(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Installed {
			out = append(out, r)
		}
	}
	return out
}

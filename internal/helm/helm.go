// Package helm drives the helm CLI: repository registration and release upgrades.
package helm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/platformatic/desk/internal/logging"
	"github.com/platformatic/desk/internal/runner"
)

var (
	missingKindPattern = regexp.MustCompile(`no matches for kind "([^"]+)" in version "([^"]+)"`)
	releasePattern     = regexp.MustCompile(`[Rr]elease "([^"]+)"`)
)

// Client runs helm against one kube context.
type Client struct {
	Runner      runner.Runner
	KubeContext string
	Logger      *slog.Logger
}

// NewClient constructs a helm client.
func NewClient(r runner.Runner, kubeContext string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{Runner: r, KubeContext: kubeContext, Logger: logger}
}

// Release is one `helm upgrade --install` unit.
type Release struct {
	Name      string
	Chart     string
	Version   string
	Namespace string
	// ValuesFiles are passed in order; later files take precedence.
	ValuesFiles []string
}

// ResourceNotReadyError reports an install that referenced a resource kind the
// cluster does not serve yet, typically a CRD installed by another chart.
type ResourceNotReadyError struct {
	Release    string
	Kind       string
	APIVersion string
	Err        error
}

func (e *ResourceNotReadyError) Error() string {
	return fmt.Sprintf("release %s: resource kind %s not found in %s", e.Release, e.Kind, e.APIVersion)
}

func (e *ResourceNotReadyError) Unwrap() error { return e.Err }

// Group returns the API group of the missing kind, or "" for core resources.
func (e *ResourceNotReadyError) Group() string {
	group, _, found := strings.Cut(e.APIVersion, "/")
	if !found {
		return ""
	}
	return group
}

// AddRepo registers (or refreshes) a chart repository.
func (c *Client) AddRepo(ctx context.Context, name, url string) error {
	_, err := c.Runner.Run(ctx, "helm", "repo", "add", name, url, "--force-update")
	return err
}

// UpgradeInstall installs or upgrades rel and returns the JSON object printed in
// the chart NOTES, if any. Failures caused by a kind the cluster does not know
// yet are returned as *ResourceNotReadyError.
func (c *Client) UpgradeInstall(ctx context.Context, rel Release) (map[string]any, error) {
	res, err := c.Runner.Run(ctx, "helm", c.upgradeArgs(rel)...)
	if err != nil {
		return nil, classify(rel.Name, err)
	}
	notes, err := ParseNotes(res.Stdout)
	if err != nil {
		c.Logger.Warn("failed to parse chart notes", "release", rel.Name, "error", err)
		return nil, nil
	}
	return notes, nil
}

func (c *Client) upgradeArgs(rel Release) []string {
	args := []string{"upgrade", "--install", rel.Name, rel.Chart}
	for _, f := range rel.ValuesFiles {
		args = append(args, "--values="+f)
	}
	if rel.Version != "" {
		args = append(args, "--version="+rel.Version)
	}
	if c.KubeContext != "" {
		args = append(args, "--kube-context="+c.KubeContext)
	}
	if rel.Namespace != "" {
		args = append(args, "--create-namespace", "--namespace="+rel.Namespace)
	}
	return args
}

// classify turns a missing-kind install failure into a *ResourceNotReadyError.
func classify(release string, err error) error {
	var toolErr *runner.ExternalToolError
	if !errors.As(err, &toolErr) {
		return err
	}
	out := toolErr.Output()
	m := missingKindPattern.FindStringSubmatch(out)
	if m == nil {
		return err
	}
	if r := releasePattern.FindStringSubmatch(out); r != nil {
		release = r[1]
	}
	return &ResourceNotReadyError{Release: release, Kind: m[1], APIVersion: m[2], Err: err}
}

// ParseNotes extracts the JSON document following the "NOTES:" line of helm output.
// Output without notes yields nil.
func ParseNotes(output string) (map[string]any, error) {
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "NOTES:" {
			continue
		}
		content := strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		if content == "" {
			return nil, nil
		}
		var notes map[string]any
		if err := json.Unmarshal([]byte(content), &notes); err != nil {
			return nil, fmt.Errorf("decode notes: %w", err)
		}
		return notes, nil
	}
	return nil, nil
}

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformatic/desk/internal/runner"
)

const cliConfig = `
cluster:
  k3d:
    ports: [443]
dependencies:
  cloudpirates/valkey:
    releaseName: valkey
    repo: oci://registry-1.docker.io/cloudpirates
apps: []
`

const cliProfile = `
version: 4
description: cli test
dependencies:
  cloudpirates/valkey:
    plt_defaults: false
platformatic:
  skip: true
`

func setupWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("_charts/v4/config.yaml", cliConfig)
	write("profiles/local.yaml", cliProfile)
	write("profiles/legacy.yml", "version: \"3\"\ndependencies: {}\nplatformatic: {skip: true}\n")

	t.Setenv("DESK_PROFILE_DIR", filepath.Join(root, "profiles"))
	t.Setenv("DESK_CHART_DIR", filepath.Join(root, "_charts"))
	t.Setenv("DESK_SECRETS_FILE", filepath.Join(root, ".env.secrets"))
	t.Setenv("DESK_RUN_BASE", filepath.Join(root, "runs"))
	t.Setenv("DESK_PROFILE_PATH", "")
	return root
}

func run(t *testing.T, r runner.Runner, args ...string) (string, error) {
	t.Helper()
	opts := &Options{Runner: r, LogOutput: io.Discard}
	cmd := newRootCommand(opts, nil)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestProfileList(t *testing.T) {
	setupWorkspace(t)

	out, err := run(t, &runner.Fake{}, "profile", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "legacy")
	assert.Contains(t, lines[2], "local")
	assert.Contains(t, lines[2], "cli test")
}

func TestClusterStatusReportsError(t *testing.T) {
	setupWorkspace(t)
	fake := &runner.Fake{Handler: func(runner.Call) (runner.Result, error) {
		return runner.Result{Stdout: `{"apiVersion":"v1","kind":"List","items":[]}`}, nil
	}}

	out, err := run(t, fake, "cluster", "status", "-p", "local")
	require.Error(t, err)

	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, map[string]any{"error": "failed to get PostgreSQL connection string: postgres service not found"}, st)
	assert.NotEmpty(t, fake.CallsWithPrefix("kubectl --context=k3d-plt-local get svc"))
}

func TestInfraInstall(t *testing.T) {
	setupWorkspace(t)
	fake := &runner.Fake{}

	_, err := run(t, fake, "infra", "install", "--profile", "local")
	require.NoError(t, err)
	assert.Len(t, fake.CallsWithPrefix("helm repo add cloudpirates"), 1)
	assert.Len(t, fake.CallsWithPrefix("helm upgrade --install valkey cloudpirates/valkey"), 1)
}

func TestDoctorFailsOnMissingTool(t *testing.T) {
	fake := &runner.Fake{Handler: func(c runner.Call) (runner.Result, error) {
		if c.Name == "helm" {
			return runner.Result{}, errors.New("not found")
		}
		return runner.Result{Stdout: "k3d version v5.7.4 Docker version 27.0.1 gitVersion: v1.31.0"}, nil
	}}

	out, err := run(t, fake, "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "✗ helm - Install: https://helm.sh/docs/intro/install/")
	assert.Contains(t, out, "✓ k3d (5.7.4)")
}

func TestDeployRequiresImage(t *testing.T) {
	setupWorkspace(t)
	_, err := run(t, &runner.Fake{}, "deploy", "-p", "local")
	assert.EqualError(t, err, "missing --image")
}

func TestAppName(t *testing.T) {
	tests := []struct{ image, want string }{
		{"orders", "orders"},
		{"plt.localreg/plt-local/Orders_API:17000", "orders-api"},
		{"localhost:5000/team/web:1.2", "web"},
		{"ghcr.io/acme/svc@sha256:abc", "svc"},
	}
	for _, tc := range tests {
		t.Run(tc.image, func(t *testing.T) {
			assert.Equal(t, tc.want, AppName(tc.image))
		})
	}
}

package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformatic/desk/internal/env"
	"github.com/platformatic/desk/internal/schema"
)

const testConfigV4 = `
cluster:
  namespaces: [platformatic, default]
  k3d:
    ports: [443]
    nodes: 1
dependencies:
  prometheus-community/kube-prometheus-stack:
    releaseName: kube-prometheus-stack
    version: "65.0.0"
    namespace: monitoring
    repo: https://prometheus-community.github.io/helm-charts
  cloudpirates/valkey:
    releaseName: valkey
    repo: oci://registry-1.docker.io/cloudpirates
  platformatic/helm:
    releaseName: platformatic
    location: ./charts/platformatic
apps:
  - name: machinist
    url: https://github.com/platformatic/machinist
    defaultBranch: main
`

const testProfileDev = `
version: 4
description: local development
cluster:
  namespaces: [apps, platformatic]
  k3d:
    ports: [1, 2]
    registry:
      address: registry.local:5000
      configPath: registry.yaml
      name: registry.local
dependencies:
  prometheus-community/kube-prometheus-stack:
    plt_defaults: true
  cloudpirates/valkey:
    plt_defaults: false
    version: "0.5.0"
    overrides:
      auth:
        password: secret
  unknown/chart:
    plt_defaults: true
platformatic:
  imagePullSecret:
    user: someone
    token: "{{ PULL_SECRET_TOKEN }}"
  services:
    icc:
      hotReload: true
      log_level: info
      secrets:
        ICC_KEY: from-profile
        ICC_OTHER: kept
    machinist:
      log_level: info
`

type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}

type fixture struct {
	root     string
	settings Settings
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		root: root,
		settings: Settings{
			ProfileDir:  filepath.Join(root, "profiles"),
			ChartDir:    filepath.Join(root, "_charts"),
			SecretsFile: filepath.Join(root, ".env.secrets"),
			RunBase:     filepath.Join(root, "runs"),
		},
	}
	f.write(t, "_charts/v4/config.yaml", testConfigV4)
	f.write(t, "profiles/dev.yaml", testProfileDev)
	f.write(t, ".env.secrets", "PULL_SECRET_TOKEN=from-file\nICC_KEY=from-file\n")
	return f
}

func (f fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f fixture) load(t *testing.T, arg, command string, environ env.Vars) (*Context, *recordingHandler, error) {
	t.Helper()
	handler := &recordingHandler{}
	dctx, err := LoadContext(context.Background(), arg, LoadOptions{
		Command:  command,
		Logger:   slog.New(handler),
		Settings: f.settings,
		Environ:  environ,
	})
	return dctx, handler, err
}

func TestLoadContextMergesCluster(t *testing.T) {
	f := newFixture(t)
	dctx, _, err := f.load(t, "dev", "infra install", env.Vars{})
	require.NoError(t, err)

	assert.Equal(t, "dev", dctx.Name)
	assert.Equal(t, 4, dctx.Version)
	assert.Equal(t, "plt-dev", dctx.ClusterName)
	assert.Equal(t, "k3d-plt-dev", dctx.KubeContext)
	assert.Equal(t, filepath.Join(f.settings.ChartDir, "v4"), dctx.ConfigDir)

	require.Equal(t, schema.ProviderK3d, dctx.Cluster.Provider.Name)
	k3d := dctx.Cluster.Provider.K3d
	require.NotNil(t, k3d)
	assert.Equal(t, []int{1, 2}, k3d.Ports)
	assert.Equal(t, 1, k3d.Nodes)
	assert.Equal(t, []string{}, k3d.Args)
	require.NotNil(t, k3d.Registry)
	assert.Equal(t, "registry.local:5000", k3d.Registry.Address)

	assert.Equal(t, []string{"platformatic", "default", "apps"}, dctx.Cluster.Namespaces)
	assert.DirExists(t, dctx.RunDir.Path())
}

func TestLoadContextProfileFalseOverridesConfig(t *testing.T) {
	f := newFixture(t)
	f.write(t, "_charts/v4/config.yaml", `
cluster:
  k3d:
    ports: [443, 8443]
    args: ["--k3s-arg=--disable=traefik@server:*"]
    nodes: 3
    gateway:
      name: traefik
      enable: true
dependencies: {}
apps: []
`)
	f.write(t, "profiles/plain.yaml", `
version: 4
cluster:
  k3d:
    args: []
    gateway:
      name: traefik
      enable: false
dependencies: {}
platformatic: {skip: true}
`)

	dctx, _, err := f.load(t, "plain", "infra install", env.Vars{})
	require.NoError(t, err)

	k3d := dctx.Cluster.Provider.K3d
	require.NotNil(t, k3d.Gateway)
	assert.False(t, k3d.Gateway.Enable)
	assert.Equal(t, []string{}, k3d.Args)
	assert.Equal(t, []int{443, 8443}, k3d.Ports, "undeclared keys keep the config value")
	assert.Equal(t, 3, k3d.Nodes)
}

func TestLoadContextMergesDependencies(t *testing.T) {
	f := newFixture(t)
	dctx, handler, err := f.load(t, "dev", "infra install", env.Vars{})
	require.NoError(t, err)

	require.Len(t, dctx.Dependencies, 2)
	assert.NotContains(t, dctx.Dependencies, "unknown/chart")
	assert.NotContains(t, dctx.Dependencies, "platformatic/helm")
	chart, ok := dctx.Chart("platformatic/helm")
	require.True(t, ok)
	assert.Equal(t, "./charts/platformatic", chart.Location)
	assert.Equal(t, 1, handler.count(slog.LevelWarn, "dependency not found in config"))

	valkey := dctx.Dependencies["cloudpirates/valkey"]
	assert.Equal(t, "valkey", valkey.ReleaseName)
	assert.Equal(t, "0.5.0", valkey.Version)
	assert.False(t, valkey.PltDefaults)
	assert.Equal(t, map[string]any{"password": "secret"}, valkey.Overrides["auth"])

	prom := dctx.Dependencies["prometheus-community/kube-prometheus-stack"]
	assert.Equal(t, "65.0.0", prom.Version)
	assert.Equal(t, "monitoring", prom.Namespace)
	assert.True(t, prom.PltDefaults)
}

func TestLoadContextSecrets(t *testing.T) {
	f := newFixture(t)
	dctx, handler, err := f.load(t, "dev", "infra install", env.Vars{"ICC_KEY": "from-env"})
	require.NoError(t, err)

	assert.Equal(t, "from-file", dctx.Secrets["PULL_SECRET_TOKEN"])
	assert.Equal(t, "from-env", dctx.Secrets["ICC_KEY"], "process environment wins over the secrets file")
	assert.Equal(t, "from-file", dctx.Platformatic.ImagePullSecret.Token)

	icc := dctx.Platformatic.Services["icc"]
	assert.Equal(t, "from-env", icc.Secrets["ICC_KEY"])
	assert.Equal(t, "kept", icc.Secrets["ICC_OTHER"])
	assert.Equal(t, 1, handler.count(slog.LevelWarn, "profile secret shadowed by external value"))
}

func TestLoadContextUndefinedPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.write(t, ".env.secrets", "")
	_, _, err := f.load(t, "dev", "infra install", env.Vars{})
	var validation *schema.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, []string{"{{ PULL_SECRET_TOKEN }}"}, validation.Paths())
}

func TestLoadContextHotReload(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.load(t, "dev", CommandClusterUp, env.Vars{})
	var hotReload *HotReloadError
	require.True(t, errors.As(err, &hotReload))
	assert.Equal(t, []MissingSource{{Service: "icc", Variable: "DESK_ICC_PATH"}}, hotReload.Missing)
	assert.Contains(t, err.Error(), "export DESK_ICC_PATH=/path/to/icc")

	dctx, _, err := f.load(t, "dev", CommandClusterUp, env.Vars{"DESK_ICC_PATH": "/src/icc"})
	require.NoError(t, err)
	assert.Equal(t, "/src/icc", dctx.Platformatic.Services["icc"].LocalRepo)

	_, _, err = f.load(t, "dev", "cluster status", env.Vars{})
	require.NoError(t, err)

	f.write(t, "profiles/other.yaml", testProfileDev)
	_, _, err = f.load(t, "other", CommandClusterUp, env.Vars{})
	require.NoError(t, err)
}

func TestLoadContextMissingConfigVersion(t *testing.T) {
	f := newFixture(t)
	f.write(t, "profiles/old.yaml", "version: 3\ndependencies: {}\nplatformatic: {skip: true}\n")
	_, _, err := f.load(t, "old", "", env.Vars{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveProfile(t *testing.T) {
	f := newFixture(t)

	ref, err := ResolveProfile("dev", f.settings)
	require.NoError(t, err)
	assert.Equal(t, ProfileRef{Name: "dev", Path: filepath.Join(f.settings.ProfileDir, "dev.yaml")}, ref)

	literal := f.write(t, "elsewhere/custom.yml", testProfileDev)
	ref, err = ResolveProfile(literal, f.settings)
	require.NoError(t, err)
	assert.Equal(t, "custom", ref.Name)

	_, err = ResolveProfile("missing", f.settings)
	var resolution *ProfileResolutionError
	require.True(t, errors.As(err, &resolution))
	assert.False(t, resolution.Ambiguous)
	assert.Len(t, resolution.Candidates, 2)

	f.write(t, "profiles/dev.yml", testProfileDev)
	_, err = ResolveProfile("dev", f.settings)
	require.True(t, errors.As(err, &resolution))
	assert.True(t, resolution.Ambiguous)

	f.write(t, "profiles/default.yaml", testProfileDev)
	ref, err = ResolveProfile("", f.settings)
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, ref.Name)

	pinned := f.settings
	pinned.ProfilePath = literal
	ref, err = ResolveProfile("", pinned)
	require.NoError(t, err)
	assert.Equal(t, "custom", ref.Name)

	ref, err = ResolveProfile("dev", pinned)
	require.NoError(t, err)
	assert.Equal(t, "dev", ref.Name, "an explicit profile wins over the pinned path")
}

func TestListProfiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "profiles/bare.yaml", "dependencies: {}\n")
	f.write(t, "profiles/notes.txt", "ignored")

	profiles, err := ListProfiles(f.settings.ProfileDir)
	require.NoError(t, err)
	assert.Equal(t, []ProfileSummary{
		{Name: "bare", Version: "unknown", Description: "No description available"},
		{Name: "dev", Version: "4", Description: "local development"},
	}, profiles)
}

func TestSettingsFrom(t *testing.T) {
	s, err := SettingsFrom(env.Vars{"DESK_CHART_DIR": "/charts"})
	require.NoError(t, err)
	assert.Equal(t, "profiles", s.ProfileDir)
	assert.Equal(t, "/charts", s.ChartDir)
	assert.Equal(t, ".env.secrets", s.SecretsFile)
	assert.Equal(t, "info", s.LogLevel)
}

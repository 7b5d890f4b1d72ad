// Package platform builds the platform chart declaration from the profile and the
// running cluster's dependency endpoints.
package platform

import (
	"context"
	"errors"
	"fmt"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/kube"
	"github.com/platformatic/desk/internal/schema"
	"github.com/platformatic/desk/internal/status"
)

// ChartKey is the config key of the platform chart.
const ChartKey = "platformatic/helm"

// Namespace receives the platform release and its pull secret.
const Namespace = "platformatic"

// PullSecretName is the docker-registry secret referenced by the platform chart.
const PullSecretName = "platformatic-pull-secret"

// DefaultRegistry is used when imagePullSecret names no registry.
const DefaultRegistry = "https://index.docker.io/v1/"

// ErrSkipped is returned when the profile opts out of the platform services.
var ErrSkipped = errors.New("platform services skipped by profile")

// ChartValues renders the profile services and layers the cluster endpoints on top.
func ChartValues(p schema.Platformatic, st status.ClusterStatus) (map[string]any, error) {
	values := map[string]any{}
	if len(p.Services) > 0 {
		data, err := yaml.Marshal(struct {
			Services map[string]schema.Service `yaml:"services"`
		}{Services: p.Services})
		if err != nil {
			return nil, fmt.Errorf("encode services: %w", err)
		}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("decode services: %w", err)
		}
	}

	icc := map[string]any{"public_url": status.PublicURL}
	if st.Postgres != nil {
		icc["database_url"] = st.Postgres.ConnectionString
	}
	if st.Valkey != nil {
		icc["valkey"] = map[string]any{
			"apps_url": st.Valkey.ConnectionString,
			"icc_url":  st.Valkey.ConnectionString,
		}
	}
	if st.Prometheus != nil {
		icc["prometheus"] = map[string]any{"url": st.Prometheus.URL}
	}
	cluster := map[string]any{"services": map[string]any{"icc": icc}}

	if err := mergo.Merge(&values, cluster, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge cluster values: %w", err)
	}
	return values, nil
}

// Declaration returns the platform chart keyed by ChartKey, ready for the installer.
func Declaration(dctx *config.Context, st status.ClusterStatus) (map[string]config.Dependency, error) {
	if !dctx.Platformatic.Enabled() {
		return nil, ErrSkipped
	}
	if st.Error != "" {
		return nil, fmt.Errorf("cluster is not ready: %s", st.Error)
	}
	if st.Valkey == nil || st.Prometheus == nil {
		return nil, errors.New("cluster is not ready: valkey and prometheus endpoints are required")
	}

	chart, ok := dctx.Chart(ChartKey)
	if !ok {
		return nil, fmt.Errorf("chart %s not declared in config", ChartKey)
	}
	values, err := ChartValues(dctx.Platformatic, st)
	if err != nil {
		return nil, err
	}
	if dctx.Platformatic.ChartVersion != "" {
		chart.Version = dctx.Platformatic.ChartVersion
	}
	if chart.Namespace == "" {
		chart.Namespace = Namespace
	}
	chart.Overrides = values
	return map[string]config.Dependency{ChartKey: chart}, nil
}

// SecretCreator creates docker-registry secrets.
type SecretCreator interface {
	CreateDockerRegistrySecret(ctx context.Context, s kube.DockerRegistrySecret) error
}

// EnsurePullSecret creates the image pull secret when the profile configures one.
// It reports whether a secret was written.
func EnsurePullSecret(ctx context.Context, k SecretCreator, dctx *config.Context) (bool, error) {
	ips := dctx.Platformatic.ImagePullSecret
	if ips == nil {
		return false, nil
	}
	token := ips.Token
	if token == "" {
		token, _ = dctx.Secrets.Lookup(status.PullSecretTokenVar)
	}
	if token == "" {
		return false, fmt.Errorf("image pull secret for %s has no token; set %s", ips.User, status.PullSecretTokenVar)
	}
	registry := ips.Registry
	if registry == "" {
		registry = DefaultRegistry
	}
	err := k.CreateDockerRegistrySecret(ctx, kube.DockerRegistrySecret{
		Name:      PullSecretName,
		Namespace: Namespace,
		Server:    registry,
		Username:  ips.User,
		Password:  token,
	})
	if err != nil {
		return false, fmt.Errorf("create pull secret: %w", err)
	}
	return true, nil
}

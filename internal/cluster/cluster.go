// Package cluster selects the provider that owns a profile's cluster lifecycle.
package cluster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/platformatic/desk/internal/cluster/k3d"
	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/runner"
	"github.com/platformatic/desk/internal/schema"
	"github.com/platformatic/desk/internal/status"
)

// Provider provisions, tears down and inspects a local cluster.
type Provider interface {
	Start(ctx context.Context, dctx *config.Context) error
	Stop(ctx context.Context, dctx *config.Context) error
	// Status never fails; lookup errors are reported inside the value.
	Status(ctx context.Context, dctx *config.Context) status.ClusterStatus
}

// Deps are the collaborators shared by every provider.
type Deps struct {
	Runner runner.Runner
	Logger *slog.Logger
	// Hosts overrides the provider's host address resolver.
	Hosts status.HostResolver
}

// ProviderIncompatibleError is returned for a provider name no backend implements.
type ProviderIncompatibleError struct {
	Name string
}

func (e *ProviderIncompatibleError) Error() string {
	if e.Name == "" {
		return "incompatible cluster provider: none configured"
	}
	return fmt.Sprintf("incompatible cluster provider %q", e.Name)
}

// New returns the provider registered under name.
func New(name string, deps Deps) (Provider, error) {
	switch name {
	case schema.ProviderK3d:
		p := k3d.New(deps.Runner, deps.Logger)
		if deps.Hosts != nil {
			p.Hosts = deps.Hosts
		}
		return p, nil
	default:
		return nil, &ProviderIncompatibleError{Name: name}
	}
}

// ForContext returns the provider selected by the merged cluster spec.
func ForContext(dctx *config.Context, deps Deps) (Provider, error) {
	return New(dctx.Cluster.Provider.Name, deps)
}

// Name is the cluster name derived from a profile name.
func Name(profile string) string {
	return config.ClusterName(profile)
}

// Package engine sequences the cluster, chart and deploy operations behind each command.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/platformatic/desk/internal/cluster"
	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/deploy"
	"github.com/platformatic/desk/internal/helm"
	"github.com/platformatic/desk/internal/infra"
	"github.com/platformatic/desk/internal/kube"
	"github.com/platformatic/desk/internal/logging"
	"github.com/platformatic/desk/internal/platform"
	"github.com/platformatic/desk/internal/runner"
	"github.com/platformatic/desk/internal/status"
)

// Engine wires the components of one command invocation.
type Engine struct {
	Runner runner.Runner
	Logger *slog.Logger
	// Hosts overrides the provider's host address resolver.
	Hosts status.HostResolver
	Retry infra.RetryPolicy
}

// NewEngine constructs an Engine that drives the external tools through r.
func NewEngine(r runner.Runner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{Runner: r, Logger: logger}
}

// UpResult summarises a cluster up.
type UpResult struct {
	Charts   []infra.Result
	Platform []infra.Result
	Status   status.ClusterStatus
}

// Up provisions the cluster, installs the profile dependencies and, unless the
// profile skips them, the platform services. Nothing is rolled back on failure.
func (e *Engine) Up(ctx context.Context, dctx *config.Context) (UpResult, error) {
	var res UpResult
	provider, err := e.provider(dctx)
	if err != nil {
		return res, err
	}

	e.Logger.Info("starting cluster", "cluster", dctx.ClusterName, "provider", dctx.Cluster.Provider.Name)
	if err := provider.Start(ctx, dctx); err != nil {
		return res, err
	}

	res.Charts, err = e.InstallInfra(ctx, dctx)
	if err != nil {
		return res, err
	}

	res.Status = provider.Status(ctx, dctx)
	if !dctx.Platformatic.Enabled() {
		e.Logger.Info("platform services skipped", "profile", dctx.Name)
		return res, nil
	}

	res.Platform, err = e.InstallPlatform(ctx, dctx, res.Status)
	return res, err
}

// Down tears the cluster down.
func (e *Engine) Down(ctx context.Context, dctx *config.Context) error {
	provider, err := e.provider(dctx)
	if err != nil {
		return err
	}
	e.Logger.Info("stopping cluster", "cluster", dctx.ClusterName)
	return provider.Stop(ctx, dctx)
}

// Status collects the dependency endpoints of the running cluster.
func (e *Engine) Status(ctx context.Context, dctx *config.Context) (status.ClusterStatus, error) {
	provider, err := e.provider(dctx)
	if err != nil {
		return status.ClusterStatus{}, err
	}
	return provider.Status(ctx, dctx), nil
}

// InstallInfra installs every dependency chart selected by the profile.
func (e *Engine) InstallInfra(ctx context.Context, dctx *config.Context) ([]infra.Result, error) {
	if len(dctx.Dependencies) == 0 {
		e.Logger.Info("no dependencies selected", "profile", dctx.Name)
		return nil, nil
	}
	e.Logger.Info("installing charts", "count", len(dctx.Dependencies))
	return e.installer(dctx).Install(ctx, dctx.Dependencies, dctx)
}

// InstallPlatform creates the image pull secret and installs the platform chart
// configured with the endpoints in st.
func (e *Engine) InstallPlatform(ctx context.Context, dctx *config.Context, st status.ClusterStatus) ([]infra.Result, error) {
	charts, err := platform.Declaration(dctx, st)
	if errors.Is(err, platform.ErrSkipped) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	kc := kube.NewClient(e.Runner, dctx.KubeContext)
	if err := kc.CreateNamespace(ctx, platform.Namespace); err != nil {
		return nil, fmt.Errorf("create namespace %s: %w", platform.Namespace, err)
	}
	created, err := platform.EnsurePullSecret(ctx, kc, dctx)
	if err != nil {
		return nil, err
	}
	if created {
		e.Logger.Info("image pull secret created", "secret", platform.PullSecretName)
	}

	e.Logger.Info("installing platform chart", "chart", platform.ChartKey)
	return e.installer(dctx).Install(ctx, charts, dctx)
}

// Deploy plans and applies an application into the cluster.
func (e *Engine) Deploy(ctx context.Context, dctx *config.Context, app deploy.App, dryRun bool) (deploy.Result, error) {
	planner := &deploy.Planner{
		Kube:   kube.NewClient(e.Runner, dctx.KubeContext),
		Logger: e.Logger,
		DryRun: dryRun,
	}
	return planner.Deploy(ctx, dctx, app)
}

func (e *Engine) provider(dctx *config.Context) (cluster.Provider, error) {
	return cluster.ForContext(dctx, cluster.Deps{Runner: e.Runner, Logger: e.Logger, Hosts: e.Hosts})
}

func (e *Engine) installer(dctx *config.Context) *infra.Installer {
	return &infra.Installer{
		Helm: helm.NewClient(e.Runner, dctx.KubeContext, e.Logger),
		Waiter: &infra.CRDWaiter{
			Kube:   kube.NewClient(e.Runner, dctx.KubeContext),
			Logger: e.Logger,
		},
		Retry:  e.Retry,
		Logger: e.Logger,
	}
}

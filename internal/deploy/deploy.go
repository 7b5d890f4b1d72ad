package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/logging"
)

// Generated file names inside the run directory.
const (
	DeploymentFile = "deployment.json"
	ServiceFile    = "service.json"
	RoutesFile     = "ingressroutes.json"
	MiddlewareFile = "stripPrefixMiddleware.json"
)

// Kube is the kubectl surface used by Planner.
type Kube interface {
	Get(ctx context.Context, kind, name, namespace string) (*unstructured.Unstructured, error)
	ApplyFile(ctx context.Context, path, namespace string) error
}

// Planner writes app manifests to the run directory and applies them.
type Planner struct {
	Kube   Kube
	Logger *slog.Logger
	// DryRun writes every artifact but applies nothing.
	DryRun bool
}

// Result lists the artifacts written for one deploy.
type Result struct {
	Files   []string
	Applied bool
}

// Deploy writes and applies the deployment, the service, the route and the
// prefix middleware of app.
func (p *Planner) Deploy(ctx context.Context, dctx *config.Context, app App) (Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	res := Result{Applied: !p.DryRun}
	m := Plan(app)

	if err := p.emit(ctx, dctx, &res, DeploymentFile, app.Namespace, m.Deployment); err != nil {
		return res, err
	}
	if err := p.emit(ctx, dctx, &res, ServiceFile, app.Namespace, m.Service); err != nil {
		return res, err
	}

	routes, err := p.Kube.Get(ctx, RoutesResource, RoutesName, app.Namespace)
	if err != nil {
		return res, fmt.Errorf("get %s/%s: %w", RoutesResource, RoutesName, err)
	}
	routes = forApply(routes)
	if err := AttachRoute(routes, app.Name, app.PathPrefix(), app.Namespace); err != nil {
		return res, err
	}
	if err := p.emit(ctx, dctx, &res, RoutesFile, app.Namespace, routes.Object); err != nil {
		return res, err
	}

	middleware, err := p.Kube.Get(ctx, MiddlewareResource, MiddlewareName, app.Namespace)
	if err != nil {
		return res, fmt.Errorf("get %s/%s: %w", MiddlewareResource, MiddlewareName, err)
	}
	middleware = forApply(middleware)
	changed, err := RegisterPrefix(middleware, app.PathPrefix())
	if err != nil {
		return res, err
	}
	if changed {
		if err := p.emit(ctx, dctx, &res, MiddlewareFile, app.Namespace, middleware.Object); err != nil {
			return res, err
		}
	} else {
		logger.Debug("route prefix already registered", "prefix", app.PathPrefix())
	}

	logger.Info("app deployed", "app", app.Name, "namespace", app.Namespace, "dry_run", p.DryRun)
	return res, nil
}

func (p *Planner) emit(ctx context.Context, dctx *config.Context, res *Result, name, namespace string, obj any) error {
	data, err := Encode(obj)
	if err != nil {
		return err
	}
	path, err := dctx.RunDir.Add(name, data)
	if err != nil {
		return err
	}
	res.Files = append(res.Files, path)
	if p.DryRun {
		return nil
	}
	if err := p.Kube.ApplyFile(ctx, path, namespace); err != nil {
		return fmt.Errorf("apply %s: %w", name, err)
	}
	return nil
}

package k3d

import (
	"context"
	"log/slog"
	"time"

	"github.com/platformatic/desk/internal/schema"
)

// Gateway names.
const (
	GatewayTraefik = "traefik"
	GatewayEnvoy   = "envoy"
)

// TraefikRouteCRD is registered by the traefik bundled with k3s.
const TraefikRouteCRD = "ingressroutes.traefik.io"

// CRDWaiter waits for a custom resource definition to become established.
type CRDWaiter interface {
	WaitForCRD(ctx context.Context, name string, timeout time.Duration) error
}

// WaitForGateway blocks until the configured gateway can accept routes.
// Envoy CRDs arrive with its chart, so only traefik is awaited here.
func WaitForGateway(ctx context.Context, w CRDWaiter, gw *schema.GatewayConfig, logger *slog.Logger) error {
	if gw == nil || !gw.Enable {
		return nil
	}
	switch gw.Name {
	case GatewayTraefik:
		logger.Info("waiting for traefik")
		return w.WaitForCRD(ctx, TraefikRouteCRD, 0)
	default:
		logger.Debug("no gateway resources to wait for", "gateway", gw.Name)
		return nil
	}
}

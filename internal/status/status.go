// Package status derives connection descriptors for the dependencies running in a cluster.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/logging"
)

// ErrServiceNotFound is returned when no service matches a lookup selector.
var ErrServiceNotFound = errors.New("service not found")

// PublicURL is the fixed public URL of the platform gateway.
const PublicURL = "https://icc.plt"

// PullSecretTokenVar is the secret holding the image pull token.
const PullSecretTokenVar = "PULL_SECRET_TOKEN"

// ValkeyDependency is the chart key whose overrides carry the valkey credentials.
const ValkeyDependency = "cloudpirates/valkey"

// Lister lists cluster objects by label selector.
type Lister interface {
	List(ctx context.Context, kind, namespace string, selectors ...string) (*unstructured.UnstructuredList, error)
}

// HostResolver returns an address of the cluster reachable from the host.
type HostResolver interface {
	HostAddress(ctx context.Context, clusterName string) (string, error)
}

// ClusterStatus is the derived view of a running environment. Error is set if and
// only if the database lookup failed, in which case nothing else is.
type ClusterStatus struct {
	Postgres   *Connection `json:"postgres,omitempty"`
	Valkey     *Connection `json:"valkey,omitempty"`
	Prometheus *Endpoint   `json:"prometheus,omitempty"`
	Kafka      *Endpoint   `json:"kafka,omitempty"`
	Install    *Install    `json:"install,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Connection is a connection-string descriptor.
type Connection struct {
	ConnectionString string `json:"connectionString"`
}

// Endpoint is a URL descriptor.
type Endpoint struct {
	URL string `json:"url"`
}

// Install carries the operator install command.
type Install struct {
	Command string `json:"command"`
}

// Aggregator queries the cluster for dependency endpoints.
type Aggregator struct {
	Kube   Lister
	Hosts  HostResolver
	Logger *slog.Logger
}

// Collect runs every lookup concurrently. A database failure aborts the whole
// result; other failures only leave their field absent.
func (a *Aggregator) Collect(ctx context.Context, dctx *config.Context) ClusterStatus {
	logger := a.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var (
		postgres, valkey, prometheus, kafka string
		valkeyErr, prometheusErr, kafkaErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		postgres, err = a.postgres(gctx, dctx)
		return err
	})
	g.Go(func() error {
		valkey, valkeyErr = a.valkey(gctx, dctx)
		return nil
	})
	g.Go(func() error {
		prometheus, prometheusErr = a.prometheus(gctx)
		return nil
	})
	g.Go(func() error {
		kafka, kafkaErr = a.kafka(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return ClusterStatus{Error: err.Error()}
	}

	st := ClusterStatus{Postgres: &Connection{ConnectionString: postgres}}
	if valkeyErr != nil {
		logger.Warn("valkey lookup failed", "error", valkeyErr)
	} else {
		st.Valkey = &Connection{ConnectionString: valkey}
	}
	if prometheusErr != nil {
		logger.Warn("prometheus lookup failed", "error", prometheusErr)
	} else {
		st.Prometheus = &Endpoint{URL: prometheus}
	}
	if kafkaErr != nil {
		logger.Debug("message bus not available", "error", kafkaErr)
	} else {
		st.Kafka = &Endpoint{URL: kafka}
	}

	if st.Valkey != nil && st.Prometheus != nil {
		token, _ := dctx.Secrets.Lookup(PullSecretTokenVar)
		st.Install = &Install{Command: FormatInstallCommand(InstallParams{
			PostgresURL:   postgres,
			ValkeyICCURL:  valkey,
			ValkeyAppsURL: valkey,
			PrometheusURL: prometheus,
			KubeContext:   dctx.KubeContext,
			PullToken:     token,
		})}
	}
	return st
}

func (a *Aggregator) postgres(ctx context.Context, dctx *config.Context) (string, error) {
	svc, err := a.findService(ctx, "postgres", "app.kubernetes.io/name=postgres")
	if err != nil {
		return "", fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}
	nodePort, ok := servicePort(svc, "postgresql", "nodePort")
	if !ok {
		return "", errors.New("failed to get PostgreSQL connection string: PostgreSQL NodePort not found")
	}
	if a.Hosts == nil {
		return "", errors.New("failed to get PostgreSQL connection string: no host address resolver")
	}
	host, err := a.Hosts.HostAddress(ctx, dctx.ClusterName)
	if err != nil {
		return "", fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}
	return fmt.Sprintf("postgresql://postgres:postgres@%s:%d", host, nodePort), nil
}

func (a *Aggregator) valkey(ctx context.Context, dctx *config.Context) (string, error) {
	list, err := a.Kube.List(ctx, "svc", "", "app.kubernetes.io/name=valkey")
	if err != nil {
		return "", fmt.Errorf("failed to get Valkey connection string: %w", err)
	}
	if len(list.Items) == 0 {
		return "", fmt.Errorf("failed to get Valkey connection string: valkey %w", ErrServiceNotFound)
	}
	svc := &list.Items[0]
	for i := range list.Items {
		name := list.Items[i].GetName()
		if strings.Contains(name, "valkey") && !strings.Contains(name, "headless") {
			svc = &list.Items[i]
			break
		}
	}
	port, ok := servicePort(svc, "valkey", "port")
	if !ok {
		port = 6379
	}
	user, password := valkeyAuth(dctx)
	return fmt.Sprintf("redis://%s:%s@%s:%d", user, password, serviceHost(svc), port), nil
}

func (a *Aggregator) prometheus(ctx context.Context) (string, error) {
	svc, err := a.findService(ctx, "prometheus", "app=kube-prometheus-stack-prometheus")
	if err != nil {
		return "", fmt.Errorf("failed to get Prometheus URL: %w", err)
	}
	port, ok := servicePort(svc, "http-web", "port")
	if !ok {
		port = 9090
	}
	return fmt.Sprintf("http://%s:%d", serviceHost(svc), port), nil
}

func (a *Aggregator) kafka(ctx context.Context) (string, error) {
	svc, err := a.findService(ctx, "kafka", "app.kubernetes.io/name=kafka")
	if err != nil {
		return "", err
	}
	port, ok := servicePort(svc, "tcp-client", "port")
	if !ok {
		port = 9092
	}
	return fmt.Sprintf("%s:%d", serviceHost(svc), port), nil
}

func (a *Aggregator) findService(ctx context.Context, what, selector string) (*unstructured.Unstructured, error) {
	list, err := a.Kube.List(ctx, "svc", "", selector)
	if err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("%s %w", what, ErrServiceNotFound)
	}
	return &list.Items[0], nil
}

// valkeyAuth reads auth.username/auth.password from the valkey chart overrides.
func valkeyAuth(dctx *config.Context) (string, string) {
	user, password := "default", "default"
	dep, ok := dctx.Dependencies[ValkeyDependency]
	if !ok {
		return user, password
	}
	if v, found, _ := unstructured.NestedString(dep.Overrides, "auth", "username"); found && v != "" {
		user = v
	}
	if v, found, _ := unstructured.NestedString(dep.Overrides, "auth", "password"); found && v != "" {
		password = v
	}
	return user, password
}

// servicePort returns field ("port" or "nodePort") of the named port of svc.
func servicePort(svc *unstructured.Unstructured, name, field string) (int64, bool) {
	ports, _, _ := unstructured.NestedSlice(svc.Object, "spec", "ports")
	for _, p := range ports {
		m, ok := p.(map[string]any)
		if !ok || m["name"] != name {
			continue
		}
		switch v := m[field].(type) {
		case int64:
			return v, v > 0
		case float64:
			return int64(v), v > 0
		case int:
			return int64(v), v > 0
		}
	}
	return 0, false
}

func serviceHost(svc *unstructured.Unstructured) string {
	ns := svc.GetNamespace()
	if ns == "" {
		ns = "default"
	}
	return fmt.Sprintf("%s.%s.svc.cluster.local", svc.GetName(), ns)
}

// Package k3d provisions local clusters with the k3d CLI.
package k3d

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/kube"
	"github.com/platformatic/desk/internal/logging"
	"github.com/platformatic/desk/internal/runner"
	"github.com/platformatic/desk/internal/schema"
	"github.com/platformatic/desk/internal/status"
)

// Tool is the k3d executable name.
const Tool = "k3d"

const (
	// RegistryImage backs the pull-through registry mirror.
	RegistryImage = "ligfx/k3d-registry-dockerd:v0.6"
	// NodeImage is imported into clusters that mount local sources.
	NodeImage = "node:22.20.0-alpine"
	// LocalSourceRoot is where hot-reload sources are mounted on the server node.
	LocalSourceRoot = "/data/local"
)

var (
	// ErrClusterExists is returned when a cluster with the same name is already present.
	ErrClusterExists = errors.New("cluster already exists")
	// ErrPortInUse is returned when a requested host port is already bound.
	ErrPortInUse = errors.New("port already in use")
)

// Provider implements the cluster lifecycle on top of k3d.
type Provider struct {
	Runner runner.Runner
	Hosts  status.HostResolver
	Logger *slog.Logger
	// PortFree reports whether a host port is free. Nil probes with net.Listen.
	PortFree func(port int) bool
}

// New returns a provider that resolves host addresses through the docker daemon.
func New(r runner.Runner, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Provider{Runner: r, Hosts: &DockerHosts{}, Logger: logger}
}

// Start provisions the cluster. A partial failure is not rolled back.
func (p *Provider) Start(ctx context.Context, dctx *config.Context) error {
	cfg := dctx.Cluster.Provider.K3d
	if cfg == nil {
		return errors.New("k3d: cluster configuration missing")
	}

	if cfg.Registry != nil {
		if err := p.ensureRegistry(ctx, cfg.Registry.Name); err != nil {
			return err
		}
	}

	clusters, err := p.list(ctx)
	if err != nil {
		return err
	}
	if err := p.preflight(dctx, cfg, clusters); err != nil {
		return err
	}

	args, volumes := CreateArgs(dctx, cfg)
	p.logger().Info("creating cluster", "cluster", dctx.ClusterName, "servers", cfg.Nodes)
	if _, err := p.Runner.Run(ctx, Tool, args...); err != nil {
		return fmt.Errorf("create cluster %s: %w", dctx.ClusterName, err)
	}
	if volumes > 0 {
		p.importNodeImage(ctx, dctx.ClusterName)
	}

	kc := kube.NewClient(p.Runner, dctx.KubeContext)
	for _, ns := range dctx.Cluster.Namespaces {
		if err := kc.CreateNamespace(ctx, ns); err != nil {
			return fmt.Errorf("create namespace %s: %w", ns, err)
		}
	}

	return WaitForGateway(ctx, kc, cfg.Gateway, p.logger())
}

// Stop deletes the cluster. A cluster that does not exist is not an error.
func (p *Provider) Stop(ctx context.Context, dctx *config.Context) error {
	res, err := p.Runner.Run(ctx, Tool, "cluster", "delete", dctx.ClusterName)
	if err != nil {
		if isNotFound(err) {
			p.logger().Info("cluster not found, nothing to stop", "cluster", dctx.ClusterName)
			return nil
		}
		return fmt.Errorf("delete cluster %s: %w", dctx.ClusterName, err)
	}
	if strings.Contains(res.Output(), "No nodes found") {
		p.logger().Info("cluster not found, nothing to stop", "cluster", dctx.ClusterName)
	}
	return nil
}

// Status collects connection details for the running dependencies.
func (p *Provider) Status(ctx context.Context, dctx *config.Context) status.ClusterStatus {
	agg := &status.Aggregator{
		Kube:   kube.NewClient(p.Runner, dctx.KubeContext),
		Hosts:  p.Hosts,
		Logger: p.logger(),
	}
	return agg.Collect(ctx, dctx)
}

// CreateArgs builds the `k3d cluster create` arguments and reports how many
// local source volumes were mounted.
func CreateArgs(dctx *config.Context, cfg *schema.K3dConfig) ([]string, int) {
	args := []string{"cluster", "create", dctx.ClusterName}
	args = append(args, cfg.Args...)
	for _, port := range cfg.Ports {
		args = append(args, fmt.Sprintf("--port=%d:%d@loadbalancer", port, port))
	}
	if cfg.Registry != nil {
		args = append(args,
			"--registry-use="+cfg.Registry.Address,
			"--registry-config="+filepath.Join(dctx.ConfigDir, cfg.Registry.ConfigPath),
		)
	}
	nodes := cfg.Nodes
	if nodes <= 0 {
		nodes = 1
	}
	args = append(args, "--servers="+strconv.Itoa(nodes), "--wait")

	volumes := 0
	services := dctx.Platformatic.Services
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		svc := services[name]
		if !svc.HotReload || svc.LocalRepo == "" {
			continue
		}
		args = append(args, fmt.Sprintf("--volume=%s:%s/%s@server:0", svc.LocalRepo, LocalSourceRoot, name))
		volumes++
	}
	return args, volumes
}

func (p *Provider) ensureRegistry(ctx context.Context, name string) error {
	_, err := p.Runner.Run(ctx, Tool,
		"registry", "create", name,
		"--image="+RegistryImage,
		"--volume=/var/run/docker.sock:/var/run/docker.sock",
		"--proxy-remote-url=*",
	)
	var toolErr *runner.ExternalToolError
	if errors.As(err, &toolErr) && strings.Contains(toolErr.Output(), "A registry node with that name already exists") {
		p.logger().Debug("registry already exists", "registry", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create registry %s: %w", name, err)
	}
	return nil
}

// importNodeImage is best effort; failures only log.
func (p *Provider) importNodeImage(ctx context.Context, clusterName string) {
	if _, err := p.Runner.Run(ctx, "docker", "pull", NodeImage); err != nil {
		p.logger().Warn("pull node image failed", "image", NodeImage, "error", err)
		return
	}
	if _, err := p.Runner.Run(ctx, Tool, "image", "import", NodeImage, "-c", clusterName); err != nil {
		p.logger().Warn("import node image failed", "image", NodeImage, "error", err)
	}
}

type clusterInfo struct {
	Name           string `json:"name"`
	ServersRunning int    `json:"serversRunning"`
}

func (p *Provider) list(ctx context.Context) ([]clusterInfo, error) {
	res, err := p.Runner.Run(ctx, Tool, "cluster", "list", "--output=json")
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	var clusters []clusterInfo
	if strings.TrimSpace(res.Stdout) == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(res.Stdout), &clusters); err != nil {
		return nil, fmt.Errorf("decode cluster list: %w", err)
	}
	return clusters, nil
}

func (p *Provider) preflight(dctx *config.Context, cfg *schema.K3dConfig, clusters []clusterInfo) error {
	for _, c := range clusters {
		if c.Name == dctx.ClusterName {
			return fmt.Errorf("%w: %s\nto recreate it run:\n  desk cluster down -p %s && desk cluster up -p %s",
				ErrClusterExists, dctx.ClusterName, dctx.Name, dctx.Name)
		}
	}

	free := p.PortFree
	if free == nil {
		free = func(port int) bool { return portFree(net.Listen, port, p.logger()) }
	}
	var busy []string
	for _, port := range cfg.Ports {
		if !free(port) {
			busy = append(busy, strconv.Itoa(port))
		}
	}
	if len(busy) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", ErrPortInUse.Error(), strings.Join(busy, ", "))
	running := runningClusters(clusters, dctx.ClusterName)
	if len(running) == 0 {
		b.WriteString("\nno other desk cluster is running")
	} else {
		b.WriteString("\nrunning clusters:")
		for _, name := range running {
			profile := strings.TrimPrefix(name, config.ClusterPrefix)
			fmt.Fprintf(&b, "\n  - %s: desk cluster down -p %s", name, profile)
		}
	}
	return &portError{msg: b.String()}
}

type portError struct{ msg string }

func (e *portError) Error() string { return e.msg }
func (e *portError) Unwrap() error { return ErrPortInUse }

func runningClusters(clusters []clusterInfo, self string) []string {
	var out []string
	for _, c := range clusters {
		if c.Name == self || !strings.HasPrefix(c.Name, config.ClusterPrefix) || c.ServersRunning == 0 {
			continue
		}
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out
}

type listenFunc func(network, address string) (net.Listener, error)

// portFree reports whether port can be published on the host. Only EADDRINUSE
// marks it busy: docker binds the port, so an unprivileged probe failing with
// EACCES on a port below 1024 says nothing about availability.
func portFree(listen listenFunc, port int, logger *slog.Logger) bool {
	l, err := listen("tcp", ":"+strconv.Itoa(port))
	if err == nil {
		_ = l.Close()
		return true
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return false
	}
	logger.Debug("port probe inconclusive, assuming free", "port", port, "error", err)
	return true
}

func isNotFound(err error) bool {
	var toolErr *runner.ExternalToolError
	if !errors.As(err, &toolErr) {
		return false
	}
	out := toolErr.Output()
	return strings.Contains(out, "No nodes found") || strings.Contains(out, "not found")
}

func (p *Provider) logger() *slog.Logger {
	if p.Logger == nil {
		return logging.Discard()
	}
	return p.Logger
}

package k3d

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformatic/desk/internal/config"
	"github.com/platformatic/desk/internal/logging"
	"github.com/platformatic/desk/internal/runner"
	"github.com/platformatic/desk/internal/schema"
)

func devContext() *config.Context {
	return &config.Context{
		Name:        "dev",
		ConfigDir:   "/charts/v4",
		ClusterName: "plt-dev",
		KubeContext: "k3d-plt-dev",
		Cluster: config.ClusterSpec{
			Provider: config.ProviderSpec{
				Name: schema.ProviderK3d,
				K3d: &schema.K3dConfig{
					Ports:    []int{443, 8080},
					Args:     []string{"--k3s-arg=--disable=metrics-server@server:*"},
					Nodes:    1,
					Registry: &schema.K3dRegistry{Address: "registry.local:5000", ConfigPath: "registry.yaml", Name: "registry.local"},
					Gateway:  &schema.GatewayConfig{Name: GatewayTraefik, Enable: true},
				},
			},
			Namespaces: []string{"platformatic", "apps"},
		},
		Platformatic: schema.Platformatic{Services: map[string]schema.Service{
			"machinist": {LogLevel: "info"},
			"icc":       {HotReload: true, LocalRepo: "/src/icc", LogLevel: "info"},
		}},
	}
}

type scripted struct {
	clusters string
	fail     map[string]error
}

func (s scripted) handle(c runner.Call) (runner.Result, error) {
	line := c.String()
	for prefix, err := range s.fail {
		if strings.HasPrefix(line, prefix) {
			return runner.Result{}, err
		}
	}
	if strings.HasPrefix(line, "k3d cluster list") {
		return runner.Result{Stdout: s.clusters}, nil
	}
	return runner.Result{}, nil
}

func TestCreateArgs(t *testing.T) {
	dctx := devContext()
	args, volumes := CreateArgs(dctx, dctx.Cluster.Provider.K3d)
	assert.Equal(t, 1, volumes)
	assert.Equal(t, []string{
		"cluster", "create", "plt-dev",
		"--k3s-arg=--disable=metrics-server@server:*",
		"--port=443:443@loadbalancer",
		"--port=8080:8080@loadbalancer",
		"--registry-use=registry.local:5000",
		"--registry-config=/charts/v4/registry.yaml",
		"--servers=1",
		"--wait",
		"--volume=/src/icc:/data/local/icc@server:0",
	}, args)
}

func TestStartProvisions(t *testing.T) {
	fake := &runner.Fake{Handler: scripted{
		clusters: `[]`,
		fail: map[string]error{
			"k3d registry create": &runner.ExternalToolError{Tool: "k3d", Stderr: "A registry node with that name already exists"},
		},
	}.handle}
	p := &Provider{Runner: fake, PortFree: func(int) bool { return true }}

	require.NoError(t, p.Start(context.Background(), devContext()))

	var got []string
	for _, c := range fake.Calls() {
		got = append(got, c.Name+" "+strings.Join(c.Args[:min(3, len(c.Args))], " "))
	}
	assert.Equal(t, []string{
		"k3d registry create registry.local",
		"k3d cluster list --output=json",
		"k3d cluster create plt-dev",
		"docker pull node:22.20.0-alpine",
		"k3d image import node:22.20.0-alpine",
		"kubectl --context=k3d-plt-dev create namespace",
		"kubectl --context=k3d-plt-dev create namespace",
		"kubectl --context=k3d-plt-dev wait --for=condition=established",
	}, got)
}

func TestStartClusterExists(t *testing.T) {
	fake := &runner.Fake{Handler: scripted{clusters: `[{"name":"plt-dev","serversRunning":1}]`}.handle}
	p := &Provider{Runner: fake, PortFree: func(int) bool { return true }}

	err := p.Start(context.Background(), devContext())
	require.ErrorIs(t, err, ErrClusterExists)
	assert.Contains(t, err.Error(), "desk cluster down -p dev && desk cluster up -p dev")
	assert.Empty(t, fake.CallsWithPrefix("k3d cluster create"))
}

func TestStartPortInUse(t *testing.T) {
	fake := &runner.Fake{Handler: scripted{clusters: `[
		{"name":"plt-staging","serversRunning":1},
		{"name":"plt-old","serversRunning":0},
		{"name":"other","serversRunning":1},
		{"name":"plt-demo","serversRunning":1}
	]`}.handle}
	p := &Provider{Runner: fake, PortFree: func(port int) bool { return port != 443 }}

	err := p.Start(context.Background(), devContext())
	require.ErrorIs(t, err, ErrPortInUse)
	msg := err.Error()
	assert.Contains(t, msg, "port already in use: 443")
	assert.Contains(t, msg, "plt-demo: desk cluster down -p demo")
	assert.Contains(t, msg, "plt-staging: desk cluster down -p staging")
	assert.NotContains(t, msg, "plt-old")
	assert.NotContains(t, msg, "other")
	assert.Empty(t, fake.CallsWithPrefix("k3d cluster create"))
}

func TestStartRegistryFailure(t *testing.T) {
	fake := &runner.Fake{Handler: scripted{fail: map[string]error{
		"k3d registry create": &runner.ExternalToolError{Tool: "k3d", Stderr: "docker daemon not running"},
	}}.handle}
	p := &Provider{Runner: fake}

	err := p.Start(context.Background(), devContext())
	require.Error(t, err)
	assert.Len(t, fake.Calls(), 1)
}

func TestStopToleratesMissingCluster(t *testing.T) {
	fake := &runner.Fake{Handler: func(runner.Call) (runner.Result, error) {
		return runner.Result{}, &runner.ExternalToolError{Tool: "k3d", Stderr: "FATA[0000] No nodes found for given cluster"}
	}}
	p := &Provider{Runner: fake}

	require.NoError(t, p.Stop(context.Background(), devContext()))
	assert.Equal(t, "k3d cluster delete plt-dev", fake.Calls()[0].String())
}

func TestStopPropagatesOtherErrors(t *testing.T) {
	boom := &runner.ExternalToolError{Tool: "k3d", Stderr: "permission denied"}
	fake := &runner.Fake{Handler: func(runner.Call) (runner.Result, error) { return runner.Result{}, boom }}
	p := &Provider{Runner: fake}

	assert.ErrorIs(t, p.Stop(context.Background(), devContext()), boom)
}

type fakeContainers struct {
	containers []container.Summary
	err        error
	options    container.ListOptions
}

func (f *fakeContainers) ContainerList(_ context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.options = options
	return f.containers, f.err
}

func TestDockerHostsResolvesServerIP(t *testing.T) {
	lister := &fakeContainers{containers: []container.Summary{{
		Names: []string{"/k3d-plt-dev-server-0"},
		NetworkSettings: &container.NetworkSettingsSummary{Networks: map[string]*network.EndpointSettings{
			"k3d-plt-dev": {IPAddress: "172.18.0.3"},
		}},
	}}}
	hosts := &DockerHosts{Client: lister}

	ip, err := hosts.HostAddress(context.Background(), "plt-dev")
	require.NoError(t, err)
	assert.Equal(t, "172.18.0.3", ip)
	assert.Equal(t, []string{"k3d-plt-dev-server-"}, lister.options.Filters.Get("name"))
}

func TestDockerHostsErrors(t *testing.T) {
	_, err := (&DockerHosts{Client: &fakeContainers{}}).HostAddress(context.Background(), "plt-dev")
	assert.EqualError(t, err, "k3d cluster server container not found")

	_, err = (&DockerHosts{Client: &fakeContainers{containers: []container.Summary{{}}}}).HostAddress(context.Background(), "plt-dev")
	assert.EqualError(t, err, "k3d cluster IP not found")

	boom := errors.New("daemon down")
	_, err = (&DockerHosts{Client: &fakeContainers{err: boom}}).HostAddress(context.Background(), "plt-dev")
	assert.ErrorIs(t, err, boom)
}

func TestPortFreeOnlyBusyWhenBound(t *testing.T) {
	held, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = held.Close() }()
	port := held.Addr().(*net.TCPAddr).Port

	assert.False(t, portFree(net.Listen, port, logging.Discard()))

	denied := func(network, address string) (net.Listener, error) {
		return nil, &net.OpError{Op: "listen", Net: network, Err: os.NewSyscallError("bind", syscall.EACCES)}
	}
	assert.True(t, portFree(denied, 443, logging.Discard()), "permission errors do not mean the port is taken")

	inUse := func(network, address string) (net.Listener, error) {
		return nil, &net.OpError{Op: "listen", Net: network, Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}
	}
	assert.False(t, portFree(inUse, 443, logging.Discard()))
}

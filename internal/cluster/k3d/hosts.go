package k3d

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// ContainerLister is the slice of the docker API used to locate cluster nodes.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// DockerHosts resolves the server node address from the docker daemon.
type DockerHosts struct {
	// Client is optional; a client is built from the environment per call when nil.
	Client ContainerLister
}

// HostAddress returns the IP of the first server node container of the cluster.
func (h *DockerHosts) HostAddress(ctx context.Context, clusterName string) (string, error) {
	lister := h.Client
	if lister == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return "", fmt.Errorf("create docker client: %w", err)
		}
		defer func() { _ = cli.Close() }()
		lister = cli
	}

	containers, err := lister.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", ServerContainerPrefix(clusterName))),
	})
	if err != nil {
		return "", fmt.Errorf("list containers: %w", err)
	}
	if len(containers) == 0 {
		return "", errors.New("k3d cluster server container not found")
	}

	node := containers[0]
	if node.NetworkSettings == nil {
		return "", errors.New("k3d cluster IP not found")
	}
	names := make([]string, 0, len(node.NetworkSettings.Networks))
	for name := range node.NetworkSettings.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ep := node.NetworkSettings.Networks[name]; ep != nil && ep.IPAddress != "" {
			return ep.IPAddress, nil
		}
	}
	return "", errors.New("k3d cluster IP not found")
}

// ServerContainerPrefix is the name prefix of the cluster's server node containers.
func ServerContainerPrefix(clusterName string) string {
	return "k3d-" + clusterName + "-server-"
}

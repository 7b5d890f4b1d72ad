// Package kube provides low-level integration with Kubernetes via kubectl.
package kube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/platformatic/desk/internal/runner"
)

// DefaultWaitTimeout bounds kubectl wait calls.
const DefaultWaitTimeout = 1500 * time.Second

// DefaultPollInterval is the delay between attempts of polling helpers.
const DefaultPollInterval = 3 * time.Second

// Client wraps kubectl execution with optional context selection.
type Client struct {
	Runner  runner.Runner
	Context string
	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration
}

// NewClient constructs a kubectl client bound to a kubeconfig context.
func NewClient(r runner.Runner, kubeContext string) *Client {
	return &Client{Runner: r, Context: kubeContext}
}

// List returns every object of kind matching the label selectors. An empty
// namespace lists across all namespaces.
func (c *Client) List(ctx context.Context, kind, namespace string, selectors ...string) (*unstructured.UnstructuredList, error) {
	args := []string{"get", kind, "--output=json"}
	if namespace == "" {
		args = append(args, "--all-namespaces")
	} else {
		args = append(args, "--namespace="+namespace)
	}
	if len(selectors) > 0 {
		args = append(args, "--selector="+strings.Join(selectors, ","))
	}
	res, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	list := &unstructured.UnstructuredList{}
	if err := list.UnmarshalJSON([]byte(res.Stdout)); err != nil {
		return nil, fmt.Errorf("decode kubectl %s list: %w", kind, err)
	}
	return list, nil
}

// Get returns a single object.
func (c *Client) Get(ctx context.Context, kind, name, namespace string) (*unstructured.Unstructured, error) {
	args := append(namespaceArgs(namespace), "get", kind+"/"+name, "--output=json")
	res, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	obj := &unstructured.Unstructured{}
	if err := json.Unmarshal([]byte(res.Stdout), &obj.Object); err != nil {
		return nil, fmt.Errorf("decode kubectl %s/%s: %w", kind, name, err)
	}
	return obj, nil
}

// ApplyFile applies a manifest file and waits for the apply to settle.
func (c *Client) ApplyFile(ctx context.Context, path, namespace string) error {
	args := append(namespaceArgs(namespace), "apply", "--filename="+path, "--wait")
	_, err := c.run(ctx, args...)
	return err
}

// WaitFor blocks until kind/name reports condition.
func (c *Client) WaitFor(ctx context.Context, kind, name, namespace, condition string, timeout time.Duration) error {
	args := namespaceArgs(namespace)
	args = append(args,
		"wait",
		"--for=condition="+condition,
		"--timeout="+formatTimeout(timeout),
		strings.ToLower(kind)+"/"+name,
	)
	_, err := c.run(ctx, args...)
	return err
}

// WaitBySelector blocks until every kind matching selectors reports condition.
func (c *Client) WaitBySelector(ctx context.Context, kind, namespace, condition string, timeout time.Duration, selectors ...string) error {
	args := namespaceArgs(namespace)
	args = append(args,
		"wait",
		"--for=condition="+condition,
		"--timeout="+formatTimeout(timeout),
		kind,
		"--selector="+strings.Join(selectors, ","),
	)
	_, err := c.run(ctx, args...)
	return err
}

// WaitForCRD waits for a custom resource definition to be established, polling
// while the definition itself does not exist yet.
func (c *Client) WaitForCRD(ctx context.Context, name string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	return retry.Constant(timeout, retry.WithUnits(c.pollInterval())).
		RetryWithContext(ctx, func(ctx context.Context) error {
			err := c.WaitFor(ctx, "crd", name, "", "established", timeout)
			if IsNotFound(err) {
				return retry.ExpectedError(err)
			}
			return err
		})
}

// CreateNamespace creates a namespace; an existing namespace is not an error.
func (c *Client) CreateNamespace(ctx context.Context, name string) error {
	_, err := c.run(ctx, "create", "namespace", name)
	if err != nil && isAlreadyExists(err) {
		return nil
	}
	return err
}

// DockerRegistrySecret describes an image pull secret.
type DockerRegistrySecret struct {
	Name      string
	Namespace string
	Server    string
	Username  string
	Password  string
}

// CreateDockerRegistrySecret replaces the named docker-registry secret.
func (c *Client) CreateDockerRegistrySecret(ctx context.Context, s DockerRegistrySecret) error {
	ns := namespaceArgs(s.Namespace)
	deleteArgs := append(append([]string{}, ns...), "delete", "secret", s.Name, "--ignore-not-found")
	if _, err := c.run(ctx, deleteArgs...); err != nil {
		return err
	}
	createArgs := append(append([]string{}, ns...),
		"create", "secret", "docker-registry", s.Name,
		"--docker-server="+s.Server,
		"--docker-username="+s.Username,
		"--docker-password="+s.Password,
	)
	_, err := c.run(ctx, createArgs...)
	return err
}

// IsNotFound reports whether err is a kubectl failure caused by a missing object.
func IsNotFound(err error) bool {
	var toolErr *runner.ExternalToolError
	if !errors.As(err, &toolErr) {
		return false
	}
	out := toolErr.Output()
	return strings.Contains(out, "NotFound") || strings.Contains(out, "not found")
}

func isAlreadyExists(err error) bool {
	var toolErr *runner.ExternalToolError
	return errors.As(err, &toolErr) && strings.Contains(toolErr.Output(), "AlreadyExists")
}

func (c *Client) run(ctx context.Context, args ...string) (runner.Result, error) {
	cmdArgs := make([]string, 0, len(args)+1)
	if c.Context != "" {
		cmdArgs = append(cmdArgs, "--context="+c.Context)
	}
	cmdArgs = append(cmdArgs, args...)
	return c.Runner.Run(ctx, "kubectl", cmdArgs...)
}

func (c *Client) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

func namespaceArgs(namespace string) []string {
	if namespace == "" {
		return nil
	}
	return []string{"--namespace=" + namespace}
}

func formatTimeout(timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	return fmt.Sprintf("%ds", int(timeout.Seconds()))
}

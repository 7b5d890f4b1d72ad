package kube

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformatic/desk/internal/runner"
)

const serviceList = `{
  "apiVersion": "v1",
  "kind": "List",
  "items": [
    {
      "apiVersion": "v1",
      "kind": "Service",
      "metadata": {"name": "postgres", "namespace": "default"},
      "spec": {"ports": [{"name": "postgresql", "port": 5432, "nodePort": 30432}]}
    }
  ]
}`

func TestListBuildsSelector(t *testing.T) {
	fake := &runner.Fake{Handler: func(runner.Call) (runner.Result, error) {
		return runner.Result{Stdout: serviceList}, nil
	}}
	client := NewClient(fake, "k3d-plt-dev")

	list, err := client.List(context.Background(), "service", "", "app.kubernetes.io/name=postgres", "tier=db")
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "postgres", list.Items[0].GetName())

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "kubectl --context=k3d-plt-dev get service --output=json --all-namespaces --selector=app.kubernetes.io/name=postgres,tier=db", calls[0].String())
}

func TestApplyAndWaitArgs(t *testing.T) {
	fake := &runner.Fake{}
	client := NewClient(fake, "")

	require.NoError(t, client.ApplyFile(context.Background(), "/run/deployment.json", "apps"))
	require.NoError(t, client.WaitFor(context.Background(), "CRD", "ingressroutes.traefik.io", "", "established", 0))
	require.NoError(t, client.WaitBySelector(context.Background(), "pod", "default", "Ready", 90*time.Second, "app=web"))

	var got []string
	for _, c := range fake.Calls() {
		got = append(got, c.String())
	}
	assert.Equal(t, []string{
		"kubectl --namespace=apps apply --filename=/run/deployment.json --wait",
		"kubectl wait --for=condition=established --timeout=1500s crd/ingressroutes.traefik.io",
		"kubectl --namespace=default wait --for=condition=Ready --timeout=90s pod --selector=app=web",
	}, got)
}

func TestWaitForCRDPollsUntilDefined(t *testing.T) {
	attempts := 0
	fake := &runner.Fake{Handler: func(runner.Call) (runner.Result, error) {
		attempts++
		if attempts < 3 {
			return runner.Result{}, &runner.ExternalToolError{
				Tool:   "kubectl",
				Stderr: `Error from server (NotFound): customresourcedefinitions.apiextensions.k8s.io "x" not found`,
			}
		}
		return runner.Result{}, nil
	}}
	client := &Client{Runner: fake, PollInterval: time.Millisecond}

	require.NoError(t, client.WaitForCRD(context.Background(), "ingressroutes.traefik.io", time.Minute))
	assert.Equal(t, 3, attempts)
}

func TestWaitForCRDStopsOnOtherErrors(t *testing.T) {
	fake := &runner.Fake{Handler: func(runner.Call) (runner.Result, error) {
		return runner.Result{}, &runner.ExternalToolError{Tool: "kubectl", Stderr: "connection refused"}
	}}
	client := &Client{Runner: fake, PollInterval: time.Millisecond}

	err := client.WaitForCRD(context.Background(), "ingressroutes.traefik.io", time.Minute)
	require.Error(t, err)
	assert.Len(t, fake.Calls(), 1)
}

func TestCreateNamespaceToleratesExisting(t *testing.T) {
	fake := &runner.Fake{Handler: func(runner.Call) (runner.Result, error) {
		return runner.Result{}, &runner.ExternalToolError{Tool: "kubectl", Stderr: `Error from server (AlreadyExists): namespaces "apps" already exists`}
	}}
	client := NewClient(fake, "")
	assert.NoError(t, client.CreateNamespace(context.Background(), "apps"))
}

func TestCreateDockerRegistrySecretReplaces(t *testing.T) {
	fake := &runner.Fake{}
	client := NewClient(fake, "k3d-plt-dev")

	err := client.CreateDockerRegistrySecret(context.Background(), DockerRegistrySecret{
		Name:      "regcred",
		Namespace: "platformatic",
		Server:    "ghcr.io",
		Username:  "someone",
		Password:  "token",
	})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "kubectl --context=k3d-plt-dev --namespace=platformatic delete secret regcred --ignore-not-found", calls[0].String())
	assert.Equal(t, "kubectl --context=k3d-plt-dev --namespace=platformatic create secret docker-registry regcred --docker-server=ghcr.io --docker-username=someone --docker-password=token", calls[1].String())
}

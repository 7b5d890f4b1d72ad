package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/platformatic/desk/internal/helm"
	"github.com/platformatic/desk/internal/kube"
	"github.com/platformatic/desk/internal/logging"
)

// CRDClient lists and waits on custom resource definitions.
type CRDClient interface {
	List(ctx context.Context, kind, namespace string, selectors ...string) (*unstructured.UnstructuredList, error)
	WaitFor(ctx context.Context, kind, name, namespace, condition string, timeout time.Duration) error
}

// CRDWaiter waits for the custom resource definition serving a missing kind.
type CRDWaiter struct {
	Kube CRDClient
	// Timeout bounds both the definition lookup and the established wait.
	Timeout time.Duration
	// PollInterval is the delay between definition lookups.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// WaitReady resolves the definition by kind and group, polling until it is
// listed, then waits for it to be established.
func (w *CRDWaiter) WaitReady(ctx context.Context, missing *helm.ResourceNotReadyError) error {
	group := missing.Group()
	if group == "" {
		return fmt.Errorf("kind %s in %s is a core resource and has no definition to wait for", missing.Kind, missing.APIVersion)
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = kube.DefaultWaitTimeout
	}
	interval := w.PollInterval
	if interval <= 0 {
		interval = kube.DefaultPollInterval
	}
	logger := w.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var name string
	err := retry.Constant(timeout, retry.WithUnits(interval)).
		RetryWithContext(ctx, func(ctx context.Context) error {
			list, err := w.Kube.List(ctx, "crd", "")
			if err != nil {
				return err
			}
			name = FindCRD(list, missing.Kind, group)
			if name == "" {
				return retry.ExpectedError(fmt.Errorf("no definition for kind %s in group %s yet", missing.Kind, group))
			}
			return nil
		})
	if err != nil {
		return err
	}

	logger.Info("waiting for resource definition", "crd", name)
	return w.Kube.WaitFor(ctx, "crd", name, "", "established", timeout)
}

// FindCRD returns the name of the definition serving kind in group, or "".
func FindCRD(list *unstructured.UnstructuredList, kind, group string) string {
	if list == nil {
		return ""
	}
	for _, item := range list.Items {
		k, _, _ := unstructured.NestedString(item.Object, "spec", "names", "kind")
		g, _, _ := unstructured.NestedString(item.Object, "spec", "group")
		if k == kind && g == group {
			return item.GetName()
		}
	}
	return ""
}

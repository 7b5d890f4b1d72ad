package deploy

import (
	"fmt"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Traefik objects shared by every app.
const (
	RoutesResource     = "ingressroutes.traefik.io"
	RoutesName         = "apps"
	MiddlewareResource = "middleware.traefik.io"
	MiddlewareName     = "app-prefix-strip"
	RouteHost          = "svcs.gw.plt"
)

// RouteMatch is the traefik match expression of a path prefix.
func RouteMatch(prefix string) string {
	return fmt.Sprintf("Host(`%s`) && PathPrefix(`/%s`)", RouteHost, prefix)
}

// AttachRoute points the rule for prefix at service, appending the rule when no
// existing rule matches the prefix. Attaching twice never duplicates a rule.
func AttachRoute(routes *unstructured.Unstructured, service, prefix, namespace string) error {
	rules, _, err := unstructured.NestedSlice(routes.Object, "spec", "routes")
	if err != nil {
		return fmt.Errorf("read routes: %w", err)
	}

	token := fmt.Sprintf("PathPrefix(`/%s`)", prefix)
	for i, r := range rules {
		rule, ok := r.(map[string]any)
		if !ok {
			continue
		}
		match, _ := rule["match"].(string)
		if !strings.Contains(match, token) {
			continue
		}
		services, _ := rule["services"].([]any)
		if len(services) == 0 {
			rule["services"] = []any{routeService(service, namespace)}
		} else if first, ok := services[0].(map[string]any); ok {
			first["name"] = service
		} else {
			services[0] = routeService(service, namespace)
		}
		rules[i] = rule
		return unstructured.SetNestedSlice(routes.Object, rules, "spec", "routes")
	}

	rules = append(rules, map[string]any{
		"kind":        "Rule",
		"match":       RouteMatch(prefix),
		"middlewares": []any{map[string]any{"name": MiddlewareName}},
		"services":    []any{routeService(service, namespace)},
	})
	return unstructured.SetNestedSlice(routes.Object, rules, "spec", "routes")
}

func routeService(name, namespace string) map[string]any {
	return map[string]any{
		"kind":      "Service",
		"name":      name,
		"namespace": namespace,
		"port":      int64(AppPort),
		"nativeLB":  true,
	}
}

// RegisterPrefix adds /prefix to the strip-prefix middleware. It reports false when
// the prefix was already registered.
func RegisterPrefix(middleware *unstructured.Unstructured, prefix string) (bool, error) {
	prefixes, _, err := unstructured.NestedStringSlice(middleware.Object, "spec", "stripPrefix", "prefixes")
	if err != nil {
		return false, fmt.Errorf("read prefixes: %w", err)
	}
	route := "/" + prefix
	if slices.Contains(prefixes, route) {
		return false, nil
	}
	prefixes = append(prefixes, route)
	if err := unstructured.SetNestedStringSlice(middleware.Object, prefixes, "spec", "stripPrefix", "prefixes"); err != nil {
		return false, err
	}
	return true, nil
}

// forApply drops server-populated metadata so the object can be re-applied.
func forApply(obj *unstructured.Unstructured) *unstructured.Unstructured {
	out := obj.DeepCopy()
	name := out.GetName()
	delete(out.Object, "status")
	out.Object["metadata"] = map[string]any{"name": name}
	return out
}

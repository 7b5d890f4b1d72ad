package config

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"

	"dario.cat/mergo"

	"github.com/platformatic/desk/internal/schema"
)

// mergeCluster layers the profile cluster block over the config defaults.
// Every key the profile declares replaces the config's, including false, zero
// and empty arrays; namespaces are a set union.
func mergeCluster(defaults schema.ClusterDefaults, profile *schema.ProfileCluster) ClusterSpec {
	provider := profile.ProviderName()
	if provider == "" && defaults.K3d != nil {
		provider = schema.ProviderK3d
	}

	spec := ClusterSpec{Provider: ProviderSpec{Name: provider}}
	var profileNamespaces []string
	if profile != nil {
		profileNamespaces = profile.Namespaces
	}
	spec.Namespaces = unionStrings(defaults.Namespaces, profileNamespaces)

	if provider == schema.ProviderK3d {
		merged := cloneK3d(defaults.K3d)
		if profile != nil && profile.K3d != nil {
			overlayK3d(merged, profile.K3d)
		}
		spec.Provider.K3d = merged
	}
	return spec
}

// mergeDependencies keeps only the charts named by the profile. A profile key the
// config does not declare is dropped with a warning.
func mergeDependencies(defaults map[string]schema.ChartDefaults, requests map[string]schema.DependencyRequest, logger *slog.Logger) (map[string]Dependency, error) {
	keys := make([]string, 0, len(requests))
	for key := range requests {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]Dependency, len(requests))
	for _, key := range keys {
		base, ok := defaults[key]
		if !ok {
			logger.Warn("dependency not found in config", "dependency", key)
			continue
		}
		req := requests[key]

		merged := fromDefaults(key, base)
		overlay := Dependency{
			Version:     req.Version,
			Namespace:   req.Namespace,
			PltDefaults: req.PltDefaults,
		}
		if err := mergo.Merge(&merged, overlay, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge dependency %s: %w", key, err)
		}
		// Chart defaults carry no values, so the profile overrides are taken as-is.
		merged.Overrides = maps.Clone(req.Overrides)
		out[key] = merged
	}
	return out, nil
}

func fromDefaults(key string, base schema.ChartDefaults) Dependency {
	return Dependency{
		Key:         key,
		ReleaseName: base.ReleaseName,
		Version:     base.Version,
		Namespace:   base.Namespace,
		Repo:        base.Repo,
		Location:    base.Location,
	}
}

func chartCatalog(defaults map[string]schema.ChartDefaults) map[string]Dependency {
	out := make(map[string]Dependency, len(defaults))
	for key, base := range defaults {
		out[key] = fromDefaults(key, base)
	}
	return out
}

func cloneK3d(in *schema.K3dConfig) *schema.K3dConfig {
	if in == nil {
		return &schema.K3dConfig{}
	}
	out := *in
	if in.Ports != nil {
		out.Ports = append([]int{}, in.Ports...)
	}
	if in.Args != nil {
		out.Args = append([]string{}, in.Args...)
	}
	if in.Registry != nil {
		registry := *in.Registry
		out.Registry = &registry
	}
	if in.Gateway != nil {
		gateway := *in.Gateway
		out.Gateway = &gateway
	}
	return &out
}

func overlayK3d(dst *schema.K3dConfig, src *schema.ProfileK3d) {
	if src.Ports != nil {
		dst.Ports = append([]int{}, src.Ports...)
	}
	if src.Args != nil {
		dst.Args = append([]string{}, src.Args...)
	}
	if src.Nodes != nil {
		dst.Nodes = *src.Nodes
	}
	// registry and gateway are replaced whole: their schema requires every field.
	if src.Registry != nil {
		registry := *src.Registry
		dst.Registry = &registry
	}
	if src.Gateway != nil {
		gateway := *src.Gateway
		dst.Gateway = &gateway
	}
}

// unionStrings returns the distinct values of a followed by b, preserving first occurrence order.
func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok || v == "" {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

package config

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"

	"github.com/platformatic/desk/internal/env"
	"github.com/platformatic/desk/internal/schema"
)

// HotReloadProfile is the only profile whose hot-reload sources are enforced.
const HotReloadProfile = "dev"

// loadSecrets merges the secrets dotfile with the process environment; the environment wins.
func loadSecrets(opts LoadOptions) (env.Vars, error) {
	environ := opts.Environ
	if environ == nil {
		environ = env.FromOS()
	}
	var fileVars env.Vars
	if opts.Settings.SecretsFile != "" {
		var err error
		fileVars, err = env.LoadOptionalEnvFile(opts.Settings.SecretsFile)
		if err != nil {
			return nil, err
		}
	}
	return env.Merge(fileVars, environ), nil
}

// shadowSecrets replaces profile secret values that collide with externally
// supplied ones. The external value always wins and every collision is logged.
func shadowSecrets(p schema.Platformatic, secrets env.Vars, logger *slog.Logger) schema.Platformatic {
	if len(p.Services) == 0 {
		return p
	}
	services := make(map[string]schema.Service, len(p.Services))
	for _, name := range sortedServiceNames(p.Services) {
		svc := p.Services[name]
		if len(svc.Secrets) > 0 {
			svc.Secrets = maps.Clone(svc.Secrets)
			for _, key := range sortedKeys(svc.Secrets) {
				external, ok := secrets.Lookup(key)
				if !ok || external == svc.Secrets[key] {
					continue
				}
				logger.Warn("profile secret shadowed by external value", "service", name, "secret", key)
				svc.Secrets[key] = external
			}
		}
		services[name] = svc
	}
	p.Services = services
	return p
}

// LocalSourceVar returns the variable naming the local source checkout of a service.
func LocalSourceVar(service string) string {
	return "DESK_" + strings.ToUpper(strings.ReplaceAll(service, "-", "_")) + "_PATH"
}

// MissingSource is one hot-reload service without a local source path.
type MissingSource struct {
	Service  string
	Variable string
}

// HotReloadError lists every hot-reload service whose local source is not configured.
type HotReloadError struct {
	Profile string
	Missing []MissingSource
}

func (e *HotReloadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "profile %q enables hot reload but local sources are not configured:", e.Profile)
	for _, m := range e.Missing {
		fmt.Fprintf(&b, "\n  - %s: %s is not set", m.Service, m.Variable)
	}
	b.WriteString("\nset them before starting the cluster:")
	for _, m := range e.Missing {
		fmt.Fprintf(&b, "\n  export %s=/path/to/%s", m.Variable, m.Service)
	}
	return b.String()
}

// applyLocalSources fills localRepo of hot-reload services from DESK_<SERVICE>_PATH.
// For the dev profile on cluster start every such variable is mandatory.
func applyLocalSources(profile, command string, p schema.Platformatic, vars env.Vars) (schema.Platformatic, error) {
	if len(p.Services) == 0 {
		return p, nil
	}
	enforce := profile == HotReloadProfile && command == CommandClusterUp

	services := make(map[string]schema.Service, len(p.Services))
	var missing []MissingSource
	for _, name := range sortedServiceNames(p.Services) {
		svc := p.Services[name]
		if svc.HotReload {
			variable := LocalSourceVar(name)
			if path, ok := vars.Lookup(variable); ok {
				svc.LocalRepo = path
			} else if enforce {
				missing = append(missing, MissingSource{Service: name, Variable: variable})
			}
		}
		services[name] = svc
	}
	if len(missing) > 0 {
		return p, &HotReloadError{Profile: profile, Missing: missing}
	}
	p.Services = services
	return p, nil
}

func sortedServiceNames(services map[string]schema.Service) []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

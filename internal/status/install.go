package status

import "fmt"

// InstallParams are the substitutions of the operator install command.
type InstallParams struct {
	PostgresURL   string
	ValkeyICCURL  string
	ValkeyAppsURL string
	PrometheusURL string
	KubeContext   string
	PullToken     string
}

// FormatInstallCommand renders the single-line platform install command.
func FormatInstallCommand(p InstallParams) string {
	return fmt.Sprintf(
		`./scripts/install.sh --pg-superuser %q --valkey-icc %q --valkey-apps %q --prometheus %q --kube-context %q --public-url %q --docker-token %q --disable-icc-oauth`,
		p.PostgresURL, p.ValkeyICCURL, p.ValkeyAppsURL, p.PrometheusURL, p.KubeContext, PublicURL, p.PullToken,
	)
}

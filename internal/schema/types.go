package schema

// Profile is the operator-authored description of a desired local environment,
// normalized across schema versions.
type Profile struct {
	// Version is the schema major version the document was validated against.
	Version int `yaml:"version"`
	// Description is a free-form summary shown by "profile list".
	Description string `yaml:"description,omitempty"`
	// Cluster holds provider overrides and extra namespaces.
	Cluster *ProfileCluster `yaml:"cluster,omitempty"`
	// Dependencies selects infrastructure charts by key.
	Dependencies map[string]DependencyRequest `yaml:"dependencies"`
	// Platformatic configures the platform services or skips them.
	Platformatic Platformatic `yaml:"platformatic"`
}

// ProfileCluster is the cluster block of a profile.
type ProfileCluster struct {
	// Namespaces are created after the cluster starts, in addition to the config's.
	Namespaces []string `yaml:"namespaces,omitempty"`
	// K3d overrides the k3d provider defaults.
	K3d *ProfileK3d `yaml:"k3d,omitempty"`
}

// ProfileK3d is the k3d block of a profile. Nil fields were not declared and
// keep the config's value.
type ProfileK3d struct {
	Ports    []int          `yaml:"ports,omitempty"`
	Args     []string       `yaml:"args,omitempty"`
	Registry *K3dRegistry   `yaml:"registry,omitempty"`
	Nodes    *int           `yaml:"nodes,omitempty"`
	Gateway  *GatewayConfig `yaml:"gateway,omitempty"`
}

// ProviderName returns the provider key declared by the profile, or "" when none is.
func (c *ProfileCluster) ProviderName() string {
	if c == nil {
		return ""
	}
	if c.K3d != nil {
		return ProviderK3d
	}
	return ""
}

// DependencyRequest opts a chart in from a profile.
type DependencyRequest struct {
	// PltDefaults layers the repository's default override file under the user's overrides.
	PltDefaults bool `yaml:"plt_defaults"`
	// Version pins a chart version, overriding the config default.
	Version string `yaml:"version,omitempty"`
	// Namespace overrides the target namespace.
	Namespace string `yaml:"namespace,omitempty"`
	// Overrides are chart values written to the run directory and passed last.
	Overrides map[string]any `yaml:"overrides,omitempty"`
}

// ProviderK3d is the provider key of the k3d backend.
const ProviderK3d = "k3d"

// K3dConfig is the provider block shared by profiles (overrides) and configs (defaults).
type K3dConfig struct {
	Ports    []int          `yaml:"ports,omitempty"`
	Args     []string       `yaml:"args,omitempty"`
	Registry *K3dRegistry   `yaml:"registry,omitempty"`
	Nodes    int            `yaml:"nodes,omitempty"`
	Gateway  *GatewayConfig `yaml:"gateway,omitempty"`
}

// K3dRegistry is the local registry mirror attached to a k3d cluster.
type K3dRegistry struct {
	Address    string `yaml:"address"`
	ConfigPath string `yaml:"configPath"`
	Name       string `yaml:"name"`
}

// GatewayConfig selects the ingress gateway installed in the cluster.
type GatewayConfig struct {
	Name   string `yaml:"name"`
	Enable bool   `yaml:"enable"`
}

// Platformatic is either {skip: true} or the platform service specification.
type Platformatic struct {
	Skip            bool               `yaml:"skip,omitempty"`
	ChartVersion    string             `yaml:"chartVersion,omitempty"`
	ImagePullSecret *ImagePullSecret   `yaml:"imagePullSecret,omitempty"`
	Services        map[string]Service `yaml:"services,omitempty"`
}

// Enabled reports whether platform services should be installed.
func (p Platformatic) Enabled() bool {
	return !p.Skip && len(p.Services) > 0
}

// ImagePullSecret holds registry credentials for private platform images.
type ImagePullSecret struct {
	Registry string `yaml:"registry,omitempty"`
	User     string `yaml:"user"`
	Token    string `yaml:"token"`
}

// Service configures one platform service (icc or machinist).
type Service struct {
	HotReload    bool                      `yaml:"hotReload,omitempty"`
	LocalRepo    string                    `yaml:"localRepo,omitempty"`
	Image        *Image                    `yaml:"image,omitempty"`
	Resources    *Resources                `yaml:"resources,omitempty"`
	Features     map[string]map[string]any `yaml:"features,omitempty"`
	LogLevel     string                    `yaml:"log_level,omitempty"`
	Scaler       *Scaler                   `yaml:"scaler,omitempty"`
	LoginMethods map[string]LoginMethod    `yaml:"login_methods,omitempty"`
	Secrets      map[string]string         `yaml:"secrets,omitempty"`
	Env          map[string]string         `yaml:"env,omitempty"`
}

// Image is a container image reference split into repository and tag.
type Image struct {
	Repository string `yaml:"repository"`
	Tag        string `yaml:"tag"`
}

// Ref returns repository:tag.
func (i Image) Ref() string {
	if i.Tag == "" {
		return i.Repository
	}
	return i.Repository + ":" + i.Tag
}

// Resources mirrors Kubernetes requests/limits.
type Resources struct {
	Limits   *ResourceQuantity `yaml:"limits,omitempty"`
	Requests *ResourceQuantity `yaml:"requests,omitempty"`
}

// ResourceQuantity is a memory/cpu pair.
type ResourceQuantity struct {
	Memory string `yaml:"memory,omitempty"`
	CPU    string `yaml:"cpu,omitempty"`
}

// Scaler configures the icc autoscaler.
type Scaler struct {
	AlgorithmVersion string `yaml:"algorithm_version"`
}

// LoginMethod configures one icc login provider.
type LoginMethod struct {
	Enable       bool   `yaml:"enable"`
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	ValidEmails  string `yaml:"valid_emails,omitempty"`
}

// Config holds the repository-maintained defaults paired with a profile version.
type Config struct {
	Cluster        ClusterDefaults          `yaml:"cluster"`
	Dependencies   map[string]ChartDefaults `yaml:"dependencies"`
	DatabaseServer any                      `yaml:"databaseServer,omitempty"`
	Valkey         []ValkeyDatabase         `yaml:"valkey,omitempty"`
	Apps           []App                    `yaml:"apps"`
}

// ClusterDefaults carries the default provider blocks.
type ClusterDefaults struct {
	Namespaces []string   `yaml:"namespaces,omitempty"`
	K3d        *K3dConfig `yaml:"k3d,omitempty"`
}

// ChartDefaults declares how a dependency chart is sourced and released.
// Exactly one of Repo and Location is set.
type ChartDefaults struct {
	ReleaseName string `yaml:"releaseName"`
	Version     string `yaml:"version,omitempty"`
	Namespace   string `yaml:"namespace,omitempty"`
	Repo        string `yaml:"repo,omitempty"`
	Location    string `yaml:"location,omitempty"`
}

// ValkeyDatabase is a named logical valkey database.
type ValkeyDatabase struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// App is an entry of the known-apps registry.
type App struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	DefaultBranch string `yaml:"defaultBranch"`
}

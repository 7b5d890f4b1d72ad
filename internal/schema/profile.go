package schema

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// LatestVersion is the newest supported schema version.
const LatestVersion = 4

// SupportedVersions lists every schema version, newest first.
var SupportedVersions = []int{4, 3}

var profileSchemas = map[int]*Node{
	3: profileV3(),
	4: profileV4(),
}

func registryNode() *Node {
	return Object(
		Required("address", String()),
		Required("configPath", String()),
		Required("name", String()),
	)
}

func gatewayNode() *Node {
	return Object(
		Required("name", String()),
		Optional("enable", Boolean().WithDefault(true)),
	)
}

func profileK3dNode() *Node {
	return Object(
		Optional("ports", Array(Integer())),
		Optional("args", Array(String())),
		Optional("registry", registryNode()),
		Optional("nodes", Integer()),
		Optional("gateway", gatewayNode()),
	)
}

func profileClusterNode() *Node {
	return Object(
		Optional("namespaces", Array(String()).WithDefault([]any{})),
		Required("k3d", profileK3dNode()),
	)
}

func dependencyRequestNode() *Node {
	return Object(
		Required("plt_defaults", Boolean()),
		Optional("version", String()),
		Optional("namespace", String()),
		Optional("overrides", Record(Any())),
	)
}

func skipNode() *Node {
	return Object(Required("skip", Boolean())).Named("skip")
}

func profileV4() *Node {
	resources := Object(
		Optional("limits", Object(Optional("memory", String()), Optional("cpu", String()))),
		Optional("requests", Object(Optional("memory", String()), Optional("cpu", String()))),
	)
	serviceFields := []Field{
		Optional("hotReload", Boolean()),
		Optional("localRepo", String()),
		Optional("image", Object(Required("tag", String()), Required("repository", String()))),
		Optional("resources", resources),
		Optional("features", Record(Object(Required("enable", Boolean())))),
		Required("log_level", Enum("debug", "info", "warn", "error")),
	}
	icc := Object(append(append([]Field{}, serviceFields...),
		Optional("scaler", Object(Required("algorithm_version", String()))),
		Optional("login_methods", Record(Object(
			Required("enable", Boolean()),
			Optional("client_id", String()),
			Optional("client_secret", String()),
			Optional("valid_emails", String()),
		))),
		Optional("secrets", Record(String())),
	)...)
	machinist := Object(serviceFields...)

	helm := Object(
		Optional("chartVersion", String()),
		Optional("imagePullSecret", Object(
			Optional("registry", String()),
			Required("user", String()),
			Required("token", String()),
		)),
		Required("services", Object(
			Required("icc", icc),
			Required("machinist", machinist),
		)),
	).Named("services")

	return StrictObject(
		Required("version", Literal(4)),
		Optional("description", String()),
		Optional("cluster", profileClusterNode()),
		Required("dependencies", Record(dependencyRequestNode())),
		Required("platformatic", Union(skipNode(), helm)),
	)
}

func profileV3() *Node {
	project := Object(
		Required("overrides", Object(
			Optional("env", Record(String())),
			Optional("secrets", Record(String())),
		)),
		Required("image", Object(Required("tag", String()), Required("repository", String()))),
		Required("path", String()),
	)
	helm := Object(
		Optional("chartVersion", String()),
		Required("github", Object(
			Optional("registry", String()),
			Required("imagePullSecret", String()),
			Required("username", String()),
		)),
		Required("projects", Object(
			Required("icc", project),
			Required("machinist", project),
		)),
	).Named("projects")

	return StrictObject(
		Required("version", Union(Literal(3), String())),
		Optional("description", String()),
		Optional("cluster", profileClusterNode()),
		Required("dependencies", Record(dependencyRequestNode())),
		Required("platformatic", Union(skipNode(), helm)),
	)
}

// ProfileVersion extracts the schema major version from a raw profile document.
// Integers, floats and semver-like strings ("4", "4.1.0") are accepted.
func ProfileVersion(raw map[string]any) (int, error) {
	v, ok := raw["version"]
	if !ok || v == nil {
		return 0, fmt.Errorf("profile must include a `version` field")
	}
	if i, ok := asInt(v); ok {
		return i, nil
	}
	parsed, err := semver.NewVersion(strings.TrimSpace(fmt.Sprint(v)))
	if err != nil {
		return 0, fmt.Errorf("profile version %v is not a version number: %w", v, err)
	}
	return int(parsed.Major()), nil
}

// ParseProfile validates a raw profile document and returns the typed profile.
// All violations are reported together in a *ValidationError.
func ParseProfile(raw map[string]any) (*Profile, error) {
	version, err := ProfileVersion(raw)
	if err != nil {
		return nil, err
	}
	node, ok := profileSchemas[version]
	if !ok {
		return nil, &UnsupportedVersionError{Document: "profile", Version: fmt.Sprint(raw["version"]), Supported: SupportedVersions}
	}

	doc := make(map[string]any, len(raw))
	for k, v := range raw {
		doc[k] = v
	}
	doc["version"] = version

	var issues []FieldIssue
	resolved, _ := node.Resolve(doc, "", &issues).(map[string]any)
	if len(issues) > 0 {
		return nil, newValidationError("profile", version, issues)
	}

	if version == 3 {
		return decodeProfileV3(resolved)
	}

	var profile Profile
	if err := decode(resolved, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}

type profileV3Doc struct {
	Version      int                          `yaml:"version"`
	Description  string                       `yaml:"description"`
	Cluster      *ProfileCluster              `yaml:"cluster"`
	Dependencies map[string]DependencyRequest `yaml:"dependencies"`
	Platformatic struct {
		Skip         bool   `yaml:"skip"`
		ChartVersion string `yaml:"chartVersion"`
		Github       *struct {
			Registry        string `yaml:"registry"`
			ImagePullSecret string `yaml:"imagePullSecret"`
			Username        string `yaml:"username"`
		} `yaml:"github"`
		Projects map[string]struct {
			Overrides struct {
				Env     map[string]string `yaml:"env"`
				Secrets map[string]string `yaml:"secrets"`
			} `yaml:"overrides"`
			Image Image  `yaml:"image"`
			Path  string `yaml:"path"`
		} `yaml:"projects"`
	} `yaml:"platformatic"`
}

// decodeProfileV3 maps the v3 layout (github credentials, projects) onto the current model.
func decodeProfileV3(resolved map[string]any) (*Profile, error) {
	var doc profileV3Doc
	if err := decode(resolved, &doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	profile := &Profile{
		Version:      doc.Version,
		Description:  doc.Description,
		Cluster:      doc.Cluster,
		Dependencies: doc.Dependencies,
		Platformatic: Platformatic{
			Skip:         doc.Platformatic.Skip,
			ChartVersion: doc.Platformatic.ChartVersion,
		},
	}
	if gh := doc.Platformatic.Github; gh != nil {
		profile.Platformatic.ImagePullSecret = &ImagePullSecret{
			Registry: gh.Registry,
			User:     gh.Username,
			Token:    gh.ImagePullSecret,
		}
	}
	if len(doc.Platformatic.Projects) > 0 {
		profile.Platformatic.Services = make(map[string]Service, len(doc.Platformatic.Projects))
		for name, p := range doc.Platformatic.Projects {
			image := p.Image
			profile.Platformatic.Services[name] = Service{
				LocalRepo: p.Path,
				Image:     &image,
				Env:       p.Overrides.Env,
				Secrets:   p.Overrides.Secrets,
				LogLevel:  "info",
			}
		}
	}
	return profile, nil
}

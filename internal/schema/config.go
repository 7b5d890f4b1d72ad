package schema

import "fmt"

var configSchemas = map[int]*Node{
	3: configV3(),
	4: configV4(),
}

func configK3dNode() *Node {
	return Object(
		Optional("ports", Array(Integer()).WithDefault([]any{443})),
		Optional("args", Array(String()).WithDefault([]any{})),
		Optional("registry", registryNode()),
		Optional("nodes", Integer().WithDefault(1)),
		Optional("gateway", gatewayNode()),
	)
}

func chartDefaultsNode() *Node {
	base := func(source string) []Field {
		return []Field{
			Required("releaseName", String()),
			Optional("version", String()),
			Optional("namespace", String()),
			Required(source, String()),
		}
	}
	return Union(
		Object(base("repo")...).Named("repo"),
		Object(base("location")...).Named("location"),
	)
}

func configFields() []Field {
	return []Field{
		Required("cluster", Object(
			Optional("namespaces", Array(String())),
			Required("k3d", configK3dNode()),
		)),
		Required("dependencies", Record(chartDefaultsNode())),
		Required("apps", Array(Object(
			Required("name", String()),
			Required("url", String()),
			Required("defaultBranch", String()),
		))),
	}
}

func configV3() *Node {
	return StrictObject(configFields()...)
}

func configV4() *Node {
	return StrictObject(append(configFields(),
		Optional("databaseServer", Any()),
		Optional("valkey", Array(Object(
			Required("name", String()),
			Required("address", String()),
		))),
	)...)
}

// ParseConfig validates a raw config document against the schema of version and
// returns the typed config with defaults applied.
func ParseConfig(raw map[string]any, version int) (*Config, error) {
	node, ok := configSchemas[version]
	if !ok {
		return nil, &UnsupportedVersionError{Document: "config", Version: fmt.Sprint(version), Supported: SupportedVersions}
	}

	var issues []FieldIssue
	resolved := node.Resolve(raw, "", &issues)
	if len(issues) > 0 {
		return nil, newValidationError("config", version, issues)
	}

	var cfg Config
	if err := decode(resolved, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

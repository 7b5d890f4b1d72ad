package cli

import (
	envparse "github.com/caarlos0/env/v11"
)

// rootEnv defines root CLI defaults sourced from DESK_* env vars.
type rootEnv struct {
	// Profile is the profile used when --profile is not given, from DESK_PROFILE.
	Profile string `env:"DESK_PROFILE"`
}

// deployEnv captures DESK_DEPLOY_* defaults for the deploy command.
type deployEnv struct {
	// Namespace is the target namespace from DESK_DEPLOY_NAMESPACE.
	Namespace string `env:"DESK_DEPLOY_NAMESPACE" envDefault:"platformatic"`
	// EnvFile is the application dotenv file from DESK_DEPLOY_ENVFILE.
	EnvFile string `env:"DESK_DEPLOY_ENVFILE"`
}

// parseEnv fills target from DESK_* env vars via caarlos0/env.
func parseEnv(target interface{}) error {
	return envparse.Parse(target)
}

func rootEnvDefaults() rootEnv {
	var e rootEnv
	_ = parseEnv(&e)
	return e
}

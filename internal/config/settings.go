package config

import (
	envparse "github.com/caarlos0/env/v11"

	"github.com/platformatic/desk/internal/env"
)

// Settings holds process-level inputs read once from DESK_* environment variables.
type Settings struct {
	// ProfileDir is the directory searched for named profiles, from DESK_PROFILE_DIR.
	ProfileDir string `env:"DESK_PROFILE_DIR" envDefault:"profiles"`
	// ProfilePath pins an explicit profile document, from DESK_PROFILE_PATH.
	ProfilePath string `env:"DESK_PROFILE_PATH"`
	// ChartDir holds the versioned configs and chart overrides, from DESK_CHART_DIR.
	ChartDir string `env:"DESK_CHART_DIR" envDefault:"_charts"`
	// SecretsFile is the untracked dotenv file with deployment secrets, from DESK_SECRETS_FILE.
	SecretsFile string `env:"DESK_SECRETS_FILE" envDefault:".env.secrets"`
	// RunBase is the parent of run directories, from DESK_RUN_BASE. Empty means the OS temp dir.
	RunBase string `env:"DESK_RUN_BASE"`
	// LogLevel is the default log level, from DESK_LOG_LEVEL.
	LogLevel string `env:"DESK_LOG_LEVEL" envDefault:"info"`
}

// LoadSettings reads Settings from the process environment.
func LoadSettings() (Settings, error) {
	var s Settings
	err := envparse.Parse(&s)
	return s, err
}

// SettingsFrom reads Settings from an explicit variable set instead of the process environment.
func SettingsFrom(vars env.Vars) (Settings, error) {
	var s Settings
	err := envparse.ParseWithOptions(&s, envparse.Options{Environment: vars})
	return s, err
}

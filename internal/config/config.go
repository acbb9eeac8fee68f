package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	APIConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	// GetBaseURL returns the configured backend origin, falling back to
	// DefaultBaseURL when none is set.
	GetBaseURL() string
	// RequireBaseURL returns the configured backend origin or
	// ErrMissingBaseURL. Used where a silent default would be wrong.
	RequireBaseURL() (string, error)
	HasBaseURL() bool
	GetTimeout() time.Duration
}

type StorageConfig interface {
	GetCredentialsFile() string
	GetWorkspaceFile() string
}

const (
	KeyAppName         = "app_name"
	KeyEnv             = "env"
	KeyLogLevel        = "log.level"
	KeyBaseURL         = "api.base_url"
	KeyTimeout         = "api.timeout"
	KeyCredentialsFile = "credentials.file"
	KeyWorkspaceFile   = "workspace.file"
)

type mainConfig struct {
	EnvVars
	API
	Storage
}

// New builds a Config from environment variables only.
func New() Config {
	cfg, _ := load(newViper(), "")
	return cfg
}

// Load builds a Config from an optional config file (yaml, toml or json,
// chosen by extension) overlaid with environment variables.
func Load(path string) (Config, error) {
	return load(newViper(), path)
}

func load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return mainConfig{EnvVars{v}, API{v}, Storage{v}}, fmt.Errorf("[config Load] failed to read %s: %w", path, err)
		}
	}
	return mainConfig{EnvVars{v}, API{v}, Storage{v}}, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAppName, "wsctl")
	v.SetDefault(KeyEnv, "DEV")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyCredentialsFile, defaultStatePath("credentials.toml"))
	v.SetDefault(KeyWorkspaceFile, defaultStatePath("workspace"))

	// API_BASE_URL is the documented variable; BASE_URL is accepted for
	// compatibility with existing deployments.
	_ = v.BindEnv(KeyBaseURL, "API_BASE_URL", baseURLVar)
	return v
}

// Set overrides a single key, e.g. from a command-line flag.
func Set(cfg Config, key string, value any) {
	if mc, ok := cfg.(mainConfig); ok {
		mc.EnvVars.v.Set(key, value)
	}
}

package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	baseURLVar = "BASE_URL"
	homeDirVar = "WSCTL_HOME"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(KeyAppName)
}

func (e EnvVars) GetEnv() string {
	env := e.v.GetString(KeyEnv)
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(KeyLogLevel)
}

// defaultStatePath places client state under $WSCTL_HOME, or ~/.wsctl when
// that is unset.
func defaultStatePath(name string) string {
	dir := GetEnv(homeDirVar, "")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".wsctl")
	}
	return filepath.Join(dir, name)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

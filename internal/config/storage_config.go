package config

import "github.com/spf13/viper"

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

// GetCredentialsFile is the durable credential tier's file.
func (s Storage) GetCredentialsFile() string {
	return s.v.GetString(KeyCredentialsFile)
}

// GetWorkspaceFile holds the active workspace id between runs.
func (s Storage) GetWorkspaceFile() string {
	return s.v.GetString(KeyWorkspaceFile)
}

//go:build !windows

package config

import (
	"os"
	"path/filepath"
)

const systemConfigPath = "/etc/connwatch/connwatch.yaml"

// GetConfigPath returns /etc/connwatch/connwatch.yaml when it exists,
// otherwise the configuration path next to the executable.
func GetConfigPath() string {
	if _, err := os.Stat(systemConfigPath); err == nil {
		return systemConfigPath
	}
	exe, err := os.Executable()
	if err != nil {
		return "connwatch.yaml"
	}
	return filepath.Join(filepath.Dir(exe), "connwatch.yaml")
}

//go:build windows

package config

import (
	"os"
	"path/filepath"
)

// GetConfigPath returns the configuration path next to the executable.
func GetConfigPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "connwatch.yaml"
	}
	return filepath.Join(filepath.Dir(exe), "connwatch.yaml")
}

//go:build darwin

package logger

import (
	"os"
	"path/filepath"
)

// getLogDir returns ~/Library/Logs/connwatch, falling back to the
// executable directory.
func getLogDir() string {
	home, err := os.UserHomeDir()
	if err == nil {
		dir := filepath.Join(home, "Library", "Logs", "connwatch")
		_ = os.MkdirAll(dir, 0755)
		return dir
	}

	// Fallback: next to executable
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

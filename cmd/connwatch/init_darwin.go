//go:build darwin

package main

import (
	"os"
	"strings"
)

func init() {
	// launchd starts daemons with an empty or minimal PATH. gopsutil shells
	// out to lsof for socket enumeration on darwin, which lives in /usr/sbin.
	systemPaths := []string{
		"/usr/bin",
		"/bin",
		"/usr/sbin",
		"/sbin",
	}

	current := os.Getenv("PATH")
	parts := strings.Split(current, ":")
	existing := make(map[string]bool, len(parts))
	for _, p := range parts {
		existing[p] = true
	}

	var toAdd []string
	for _, p := range systemPaths {
		if !existing[p] {
			toAdd = append(toAdd, p)
		}
	}

	if len(toAdd) == 0 {
		return
	}
	if current == "" {
		os.Setenv("PATH", strings.Join(toAdd, ":"))
		return
	}
	os.Setenv("PATH", current+":"+strings.Join(toAdd, ":"))
}

// Package solvdir resolves the driver's per-user state directories: where
// its own config/profile artifacts live, separate from the system-wide
// /var/cache/solv cache store and /etc/zypp repo configuration.
package solvdir

import (
	"os"
	"path/filepath"
	"runtime"
)

func Home() (string, error) {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "solv"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "AppData", "Local", "solv"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "solv"), nil
}

func MustHome() string {
	home, err := Home()
	if err != nil {
		return "solv"
	}
	return home
}

func ConfigFile() string {
	return filepath.Join(MustHome(), "config.yaml")
}

func ProfileDir() string {
	return filepath.Join(MustHome(), "profiles")
}

func StateDir() string {
	return filepath.Join(MustHome(), "state")
}

func EnsureHome() error {
	return os.MkdirAll(MustHome(), 0755)
}

package utils

import (
	"os"
	"path/filepath"
)

// EnvConfigDir overrides where spinup keeps its local files.
const EnvConfigDir = "SPINUP_CONFIG_DIR"

// ConfigDir returns the directory for spinup's credential and
// connection files, honoring the SPINUP_CONFIG_DIR override.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "spinup"), nil
}

// EnsureConfigDir creates the config directory (owner-only) if needed
// and returns it.
func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

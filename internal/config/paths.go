package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// This file centralizes all base-directory resolution for hometree: an env
// var override first, then the OS default, all funneled through one app
// subdirectory name so every other package has a single source of truth.

const appSubdir = "hometree"

const (
	envConfigDir  = "HOMETREE_CONFIG_DIR"
	envStateDir   = "HOMETREE_STATE_DIR"
	envCacheDir   = "HOMETREE_CACHE_DIR"
	envRuntimeDir = "HOMETREE_RUNTIME_DIR"
)

func resolve(envVar, xdgEnvVar, fallbackRel string) (string, error) {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appSubdir), nil
	}

	if dir := os.Getenv(xdgEnvVar); dir != "" {
		return filepath.Join(dir, appSubdir), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, fallbackRel, appSubdir), nil
}

// ConfigDir returns the base configuration directory.
func ConfigDir() (string, error) {
	return resolve(envConfigDir, "XDG_CONFIG_HOME", ".config")
}

// StateDir returns the base state directory (generations, locks, backups,
// the inhibit marker).
func StateDir() (string, error) {
	return resolve(envStateDir, "XDG_STATE_HOME", ".local/state")
}

// CacheDir returns the base cache directory.
func CacheDir() (string, error) {
	return resolve(envCacheDir, "XDG_CACHE_HOME", ".cache")
}

// RuntimeDir returns the base runtime directory (the IPC socket lives here).
// When neither HOMETREE_RUNTIME_DIR nor XDG_RUNTIME_DIR is set (common
// outside a login session), this degrades to the same base as StateDir
// rather than /tmp, since a shared world-writable tmp is a worse place for
// a 0600 socket than a directory already private to the user.
func RuntimeDir() (string, error) {
	if dir := os.Getenv(envRuntimeDir); dir != "" {
		return filepath.Join(dir, appSubdir), nil
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appSubdir), nil
	}
	return resolve(envRuntimeDir, "XDG_STATE_HOME", ".local/state")
}

// ConfigFilePath returns the absolute path to config.toml under dir.
func ConfigFilePath(dir string) string {
	return filepath.Join(dir, "config.toml")
}

// EnsureDir creates dir (and parents) with the given permission.
func EnsureDir(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

// HomeDir returns the user's home directory, honoring an override via HOME.
func HomeDir() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	return os.UserHomeDir()
}

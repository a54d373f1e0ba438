package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "tablewatch"

// Config file name.
const configFileName = "config.toml"

// Registry database file name.
const registryFileName = "watches.db"

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/tablewatch).
// On macOS, uses ~/Library/Application Support/tablewatch per Apple
// guidelines. Other platforms fall back to ~/.config/tablewatch.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDir(home, "XDG_CONFIG_HOME", ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application data
// (the registry database and the journal). On Linux, respects XDG_DATA_HOME.
// On macOS, config and data share one directory per platform convention.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDir(home, "XDG_DATA_HOME", filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// linuxDir resolves an XDG base directory, falling back to the conventional
// home-relative path when the variable is unset.
func linuxDir(home, xdgVar, fallback string) string {
	if xdg := os.Getenv(xdgVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), configFileName)
}

// DefaultRegistryPath returns the full path to the registry database.
func DefaultRegistryPath() string {
	return filepath.Join(DefaultDataDir(), registryFileName)
}

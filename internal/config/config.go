// Package config provides configuration storage for gx-admin: platform
// config-directory resolution, the nested JSON configuration document
// with first-run default seeding, and deep merging of partial updates.
package config

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the configuration directory for gx-admin.
// It follows platform-specific conventions:
// - GX_ADMIN_DIR environment variable, when set
// - Windows: %APPDATA%\gx-admin
// - Unix-like: $XDG_CONFIG_HOME/gx-admin or $HOME/.config/gx-admin
func GetConfigDir() (string, error) {
	var configDir string

	if dir := os.Getenv("GX_ADMIN_DIR"); dir != "" {
		configDir = dir
	} else if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		configDir = filepath.Join(xdgConfig, "gx-admin")
	} else if appData := os.Getenv("APPDATA"); appData != "" {
		// Windows: use APPDATA
		configDir = filepath.Join(appData, "gx-admin")
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		// Unix-like: use ~/.config/gx-admin
		configDir = filepath.Join(homeDir, ".config", "gx-admin")
	} else {
		return "", err
	}

	// Ensure the directory exists
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return configDir, nil
}

// GetUserDBPath returns the full path to the user database file in the config directory.
func GetUserDBPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "users.json"), nil
}

// GetConfigFilePath returns the full path to the configuration document in the config directory.
func GetConfigFilePath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// GetStatsDBPath returns the full path to the statistics database in the config directory.
func GetStatsDBPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "statistics.db"), nil
}

// GetBackupDir returns (and creates) the backup directory under the config directory.
func GetBackupDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	backupDir := filepath.Join(configDir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", err
	}
	return backupDir, nil
}

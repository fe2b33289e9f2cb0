package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/driftbox/driftbox/internal/constants"
)

// ConfigDir returns the directory holding the config file and session token.
//
// Locations:
//   - Windows: %APPDATA%\driftbox
//   - Unix: ~/.config/driftbox
func ConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, constants.AppName)
		}
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), constants.AppName)
		}
		return filepath.Join(homeDir, ".config", constants.AppName)
	}
	return filepath.Join(configDir, constants.AppName)
}

// DefaultConfigPath returns ConfigDir()/config.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config")
}

// DataDir holds the embedded metadata database and the local blob root.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\driftbox
//   - Unix: ~/.local/share/driftbox (or $XDG_DATA_HOME/driftbox)
func DataDir() string {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, constants.AppName)
		}
		return ConfigDir()
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, constants.AppName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), constants.AppName+"-data")
	}
	return filepath.Join(homeDir, ".local", "share", constants.AppName)
}

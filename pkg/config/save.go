package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// SaveUser writes cfg to the user-scoped config file. An empty path uses
// the platform default location.
func SaveUser(cfg *Config, path string) error {
	if path == "" {
		dir, err := EnsureUserConfigDir()
		if err != nil {
			return &ConfigError{Wrapped: err}
		}
		path = filepath.Join(dir, "config.toml")
	}
	return writeTOML(cfg, path, 0o600)
}

// SaveRepo writes cfg to .multigit/config.toml under repoRoot.
func SaveRepo(cfg *Config, repoRoot string) error {
	path := filepath.Join(repoRoot, filepath.FromSlash(RepoConfigPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ConfigError{Source: path, Wrapped: err}
	}
	return writeTOML(cfg, path, 0o644)
}

// writeTOML marshals through a temp file and renames into place so a
// crash never leaves a half-written config.
func writeTOML(cfg *Config, path string, mode os.FileMode) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return &ConfigError{Source: path, Wrapped: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return &ConfigError{Source: path, Wrapped: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &ConfigError{Source: path, Wrapped: err}
	}
	return nil
}

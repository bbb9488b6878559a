// Package config loads and merges multigit configuration from defaults,
// the user-scoped file, the repository-scoped file, and command-line
// overrides, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
)

// Sync strategies accepted by sync.strategy.
const (
	StrategyFastForward = "fast-forward"
	StrategyMerge       = "merge"
	StrategyRebase      = "rebase"
	StrategyForce       = "force"
)

// Credential backends accepted by security.auth_backend.
const (
	BackendKeyring       = "keyring"
	BackendEncryptedFile = "encrypted-file"
)

// RepoConfigPath is the repository-scoped config file, relative to the
// repository root.
const RepoConfigPath = ".multigit/config.toml"

// ConfigError indicates malformed or invalid configuration. It is fatal
// at command entry.
type ConfigError struct {
	Source  string
	Wrapped error
}

func (e *ConfigError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("config error (%s): %v", e.Source, e.Wrapped)
	}
	return fmt.Sprintf("config error: %v", e.Wrapped)
}

func (e *ConfigError) Unwrap() error { return e.Wrapped }

// Config is the effective multigit configuration. It is loaded once at
// command entry and treated as immutable for the command's duration.
type Config struct {
	Settings SettingsConfig        `mapstructure:"settings" toml:"settings"`
	Sync     SyncConfig            `mapstructure:"sync" toml:"sync"`
	Security SecurityConfig        `mapstructure:"security" toml:"security"`
	Daemon   DaemonConfig          `mapstructure:"daemon" toml:"daemon"`
	Remotes  map[string]RemoteSpec `mapstructure:"remotes" toml:"remotes"`
}

// SettingsConfig holds general behavior settings
type SettingsConfig struct {
	DefaultBranch string `mapstructure:"default_branch" toml:"default_branch"`
	ParallelPush  bool   `mapstructure:"parallel_push" toml:"parallel_push"`
	MaxParallel   int    `mapstructure:"max_parallel" toml:"max_parallel"`
	ColoredOutput bool   `mapstructure:"colored_output" toml:"colored_output"`
}

// SyncConfig holds synchronization policy
type SyncConfig struct {
	Strategy        string   `mapstructure:"strategy" toml:"strategy"`
	PrimarySource   string   `mapstructure:"primary_source" toml:"primary_source,omitempty"`
	AutoSync        bool     `mapstructure:"auto_sync" toml:"auto_sync"`
	IncludeBranches []string `mapstructure:"include_branches" toml:"include_branches,omitempty"`
	ExcludeBranches []string `mapstructure:"exclude_branches" toml:"exclude_branches,omitempty"`
}

// SecurityConfig holds credential and transport policy
type SecurityConfig struct {
	AuthBackend       string `mapstructure:"auth_backend" toml:"auth_backend"`
	AllowEnvTokens    bool   `mapstructure:"allow_env_tokens" toml:"allow_env_tokens"`
	AllowInsecureHTTP bool   `mapstructure:"allow_insecure_http" toml:"allow_insecure_http"`
	AuditLog          bool   `mapstructure:"audit_log" toml:"audit_log"`
}

// DaemonConfig holds background daemon settings
type DaemonConfig struct {
	Interval string `mapstructure:"interval" toml:"interval"`
	LogFile  string `mapstructure:"log_file" toml:"log_file,omitempty"`
}

// RemoteSpec is one configured remote endpoint
type RemoteSpec struct {
	Provider string `mapstructure:"provider" toml:"provider"`
	Username string `mapstructure:"username" toml:"username"`
	APIURL   string `mapstructure:"api_url" toml:"api_url,omitempty"`
	Enabled  bool   `mapstructure:"enabled" toml:"enabled"`
	Priority int    `mapstructure:"priority" toml:"priority,omitempty"`
}

// Remote pairs a remote name with its spec, preserving ordering.
type Remote struct {
	Name string
	Spec RemoteSpec
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("settings.default_branch", "main")
	v.SetDefault("settings.parallel_push", true)
	v.SetDefault("settings.max_parallel", 4)
	v.SetDefault("settings.colored_output", true)
	v.SetDefault("sync.strategy", StrategyFastForward)
	v.SetDefault("sync.auto_sync", false)
	v.SetDefault("security.auth_backend", BackendKeyring)
	v.SetDefault("security.allow_env_tokens", false)
	v.SetDefault("security.allow_insecure_http", false)
	v.SetDefault("security.audit_log", false)
	v.SetDefault("daemon.interval", "15m")
}

// LoadOptions controls which files participate in the merge. Empty
// fields fall back to the platform defaults.
type LoadOptions struct {
	// UserFile is the user-scoped config file. Defaults to
	// <UserConfigDir>/multigit/config.toml.
	UserFile string
	// RepoRoot is the repository root holding .multigit/config.toml.
	// Empty means no repository-scoped file is consulted.
	RepoRoot string
	// Overrides are dotted-key command-line overrides applied last.
	Overrides map[string]interface{}
}

// Load merges defaults, the user file, the repository file, and
// command-line overrides into an effective Config. Missing files are not
// errors; empty files yield defaults. Malformed input fails with
// ConfigError.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	userFile := opts.UserFile
	if userFile == "" {
		if dir, err := UserConfigDir(); err == nil {
			userFile = filepath.Join(dir, "config.toml")
		}
	}
	if userFile != "" {
		if err := mergeFile(v, userFile); err != nil {
			return nil, &ConfigError{Source: userFile, Wrapped: err}
		}
	}

	if opts.RepoRoot != "" {
		repoFile := filepath.Join(opts.RepoRoot, filepath.FromSlash(RepoConfigPath))
		if err := mergeFile(v, repoFile); err != nil {
			return nil, &ConfigError{Source: repoFile, Wrapped: err}
		}
	}

	for key, val := range opts.Overrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Wrapped: err}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func mergeFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// EnabledRemotes returns the enabled remotes sorted by priority then
// name. Lower priority values sort first.
func (c *Config) EnabledRemotes() []Remote {
	remotes := make([]Remote, 0, len(c.Remotes))
	for name, spec := range c.Remotes {
		if spec.Enabled {
			remotes = append(remotes, Remote{Name: name, Spec: spec})
		}
	}
	sort.Slice(remotes, func(i, j int) bool {
		if remotes[i].Spec.Priority != remotes[j].Spec.Priority {
			return remotes[i].Spec.Priority < remotes[j].Spec.Priority
		}
		return remotes[i].Name < remotes[j].Name
	})
	return remotes
}

// BranchIncluded reports whether branch participates in sync according
// to the include/exclude glob lists. An empty include list means all
// branches; excludes win over includes.
func (c *Config) BranchIncluded(branch string) bool {
	for _, pattern := range c.Sync.ExcludeBranches {
		if ok, err := doublestar.Match(pattern, branch); err == nil && ok {
			return false
		}
	}
	if len(c.Sync.IncludeBranches) == 0 {
		return true
	}
	for _, pattern := range c.Sync.IncludeBranches {
		if ok, err := doublestar.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}

// UserConfigDir returns the multigit directory under the platform user
// configuration directory.
func UserConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "multigit"), nil
}

// EnsureUserConfigDir returns UserConfigDir, creating it when missing.
func EnsureUserConfigDir() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

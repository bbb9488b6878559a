/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/pkg/audit"
	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/exitcode"
	"github.com/multigit-dev/multigit/pkg/logger"
	"github.com/multigit-dev/multigit/pkg/secrets"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multigit",
		Short: "Keep one local repository in sync with many Git hosts",
		Long: `MultiGit fans fetches and pushes out to every configured remote
(GitHub, GitLab, Bitbucket, Codeberg, Gitea) in parallel, detects
divergence between them, and surfaces actionable conflicts.

Examples:
   multigit remote add github alice    # register a remote and its token
   multigit push --branch main         # push to every enabled remote
   multigit sync --dry-run             # fetch, detect conflicts, report
   multigit daemon start --interval 15m`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Line-oriented structured output")
	cmd.PersistentFlags().Bool("verbose", false, "Verbose output (same as --log-level debug)")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.Version = Version
	cmd.SetVersionTemplate("multigit {{.Version}}\n")

	return cmd
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute runs the CLI and maps command failures onto the stable exit
// codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command failed", logger.Err(err))

		var coded *exitError
		if errors.As(err, &coded) {
			os.Exit(coded.code)
		}
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(exitcode.ConfigError)
		}
		os.Exit(exitcode.GeneralError)
	}
}

// exitError carries an explicit exit code out of a RunE handler.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := logger.ParseLevel(logLevelStr)
	if verbose && level > logger.DebugLevel {
		level = logger.DebugLevel
	}

	cfg := logger.Config{
		Level:     level,
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "multigit",
	}
	if err := logger.Initialize(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(exitcode.ConfigError)
	}
}

// findRepoRoot walks upward from cwd to the directory containing .git.
// Empty when not inside a repository.
func findRepoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadEffectiveConfig merges defaults, user file, repo file, and CLI
// overrides for the current invocation.
func loadEffectiveConfig(overrides map[string]interface{}) (*config.Config, string, error) {
	repoRoot := findRepoRoot()
	cfg, err := config.Load(config.LoadOptions{RepoRoot: repoRoot, Overrides: overrides})
	if err != nil {
		return nil, "", err
	}
	return cfg, repoRoot, nil
}

// auditLogger returns the audit logger when security.audit_log is on.
func auditLogger(cfg *config.Config) *audit.Logger {
	if !cfg.Security.AuditLog {
		return nil
	}
	dir, err := config.EnsureUserConfigDir()
	if err != nil {
		logger.Warn("Audit log unavailable", logger.Err(err))
		return nil
	}
	return audit.New(filepath.Join(dir, "audit.log"))
}

// buildSecrets assembles the credential manager for the configured
// backend.
func buildSecrets(cfg *config.Config) (*secrets.Manager, error) {
	opts := secrets.Options{
		AllowEnv: cfg.Security.AllowEnvTokens,
		Audit:    auditLogger(cfg),
	}

	switch cfg.Security.AuthBackend {
	case config.BackendEncryptedFile:
		dir, err := config.EnsureUserConfigDir()
		if err != nil {
			return nil, err
		}
		pass, err := readPassphrase()
		if err != nil {
			return nil, err
		}
		backend := secrets.NewFileBackend(filepath.Join(dir, "credentials.enc"), pass)
		return secrets.NewManager(backend, opts), nil
	default:
		return secrets.NewManager(secrets.NewKeyringBackend(), opts), nil
	}
}

// readPassphrase reads the encrypted-store passphrase from stdin.
func readPassphrase() (*secrets.Passphrase, error) {
	fmt.Fprint(os.Stderr, "Encrypted store passphrase: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	return secrets.NewPassphrase([]byte(trimmed)), nil
}

func jsonMode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

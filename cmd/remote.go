/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/internal/provider"
	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/exitcode"
	"github.com/multigit-dev/multigit/pkg/gitengine"
	"github.com/multigit-dev/multigit/pkg/logger"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage configured remotes",
}

var (
	flagRemoteURL      string
	flagRemoteToken    string
	flagRemoteName     string
	flagRemotePriority int
	flagRemoteEnabled  bool
	flagRemoteDisabled bool
)

var remoteAddCmd = &cobra.Command{
	Use:   "add <provider> <username>",
	Short: "Add a remote and store its credential",
	Long: `Add a remote for a hosting provider. The token is read from --token
or prompted. Custom provider URLs must be HTTPS unless
security.allow_insecure_http is enabled.`,
	Args: cobra.ExactArgs(2),
	RunE: runRemoteAdd,
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured remotes",
	RunE:  runRemoteList,
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a remote and its stored credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteRemove,
}

var remoteTestCmd = &cobra.Command{
	Use:   "test [name]",
	Short: "Test connectivity for one or all remotes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRemoteTest,
}

var remoteUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Update a remote's settings or token",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteUpdate,
}

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteRemoveCmd)
	remoteCmd.AddCommand(remoteTestCmd)
	remoteCmd.AddCommand(remoteUpdateCmd)

	remoteAddCmd.Flags().StringVar(&flagRemoteURL, "url", "", "API base URL (required for self-hosted providers)")
	remoteAddCmd.Flags().StringVar(&flagRemoteToken, "token", "", "Access token (prompted when omitted)")
	remoteAddCmd.Flags().StringVar(&flagRemoteName, "name", "", "Remote name (default: the provider tag)")
	remoteAddCmd.Flags().IntVar(&flagRemotePriority, "priority", 0, "Ordering priority (lower first)")

	remoteUpdateCmd.Flags().StringVar(&flagRemoteURL, "url", "", "New API base URL")
	remoteUpdateCmd.Flags().StringVar(&flagRemoteToken, "token", "", "Replace the stored token")
	remoteUpdateCmd.Flags().IntVar(&flagRemotePriority, "priority", -1, "New ordering priority")
	remoteUpdateCmd.Flags().BoolVar(&flagRemoteEnabled, "enable", false, "Enable the remote")
	remoteUpdateCmd.Flags().BoolVar(&flagRemoteDisabled, "disable", false, "Disable the remote")
}

func runRemoteAdd(cmd *cobra.Command, args []string) error {
	providerTag, username := args[0], args[1]

	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}

	// HTTPS policy applies at setup time; provider construction repeats
	// it at use time.
	host, err := provider.HostFor(providerTag, flagRemoteURL, cfg.Security.AllowInsecureHTTP)
	if err != nil {
		return exitWith(exitcode.ConfigError, err)
	}

	name := flagRemoteName
	if name == "" {
		name = providerTag
	}
	if _, exists := cfg.Remotes[name]; exists {
		return fmt.Errorf("remote %q already exists; use 'multigit remote update'", name)
	}

	token := flagRemoteToken
	if token == "" {
		if token, err = promptToken(providerTag, username); err != nil {
			return err
		}
	}

	store, err := buildSecrets(cfg)
	if err != nil {
		return err
	}
	if err := store.Store(providerTag, host, username, token); err != nil {
		return err
	}

	spec := config.RemoteSpec{
		Provider: providerTag,
		Username: username,
		APIURL:   flagRemoteURL,
		Enabled:  true,
		Priority: flagRemotePriority,
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]config.RemoteSpec)
	}
	cfg.Remotes[name] = spec
	if err := saveConfig(cfg, repoRoot); err != nil {
		return err
	}

	// Register the git remote when inside a repository.
	if repoRoot != "" {
		p, perr := provider.New(providerTag, username, token, provider.Options{
			APIURL:            flagRemoteURL,
			AllowInsecureHTTP: cfg.Security.AllowInsecureHTTP,
		})
		if perr != nil {
			return perr
		}
		repoName := filepath.Base(repoRoot)
		engine, eerr := gitengine.Open(repoRoot)
		if eerr == nil {
			url := p.RemoteURL(username, repoName, provider.ProtocolHTTPS)
			if aerr := engine.AddRemote(name, url); aerr != nil {
				logger.Warn("Could not register git remote", logger.String("remote", name), logger.Err(aerr))
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added remote %s (%s@%s)\n", name, username, host)
	return nil
}

func runRemoteList(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(cfg.Remotes) == 0 {
		fmt.Fprintln(out, "No remotes configured")
		return nil
	}

	rows := make([][3]string, 0, len(cfg.Remotes))
	for _, r := range allRemotesOrdered(cfg) {
		state := "enabled"
		if !r.Spec.Enabled {
			state = "disabled"
		}
		detail := fmt.Sprintf("%s@%s", r.Spec.Username, displayHost(r.Spec))
		if r.Spec.Priority != 0 {
			detail += fmt.Sprintf("  priority=%d", r.Spec.Priority)
		}
		rows = append(rows, [3]string{r.Name, r.Spec.Provider + " (" + state + ")", detail})
	}
	printColumns(out, rows)
	return nil
}

func runRemoteRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}
	spec, ok := cfg.Remotes[name]
	if !ok {
		return fmt.Errorf("remote %q is not configured", name)
	}

	host, err := provider.HostFor(spec.Provider, spec.APIURL, cfg.Security.AllowInsecureHTTP)
	if err == nil {
		store, serr := buildSecrets(cfg)
		if serr == nil {
			if derr := store.Delete(spec.Provider, host, spec.Username); derr != nil {
				logger.Warn("Could not delete stored credential", logger.Err(derr))
			}
		}
	}

	delete(cfg.Remotes, name)
	if err := saveConfig(cfg, repoRoot); err != nil {
		return err
	}

	if repoRoot != "" {
		if engine, eerr := gitengine.Open(repoRoot); eerr == nil {
			if rerr := engine.RemoveRemote(name); rerr != nil {
				logger.Debug("Git remote not removed", logger.String("remote", name), logger.Err(rerr))
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed remote %s\n", name)
	return nil
}

func runRemoteTest(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}

	remotes := cfg.EnabledRemotes()
	if len(args) == 1 {
		if remotes, err = selectRemotes(remotes, args[:1]); err != nil {
			return err
		}
	}
	if len(remotes) == 0 {
		return fmt.Errorf("no enabled remotes to test")
	}

	store, err := buildSecrets(cfg)
	if err != nil {
		return err
	}

	failed := probeRemotes(cmd, cfg, store, remotes)
	if failed > 0 {
		return exitWith(exitcode.NetworkError, fmt.Errorf("%d of %d remotes failed the connection test", failed, len(remotes)))
	}
	return nil
}

func runRemoteUpdate(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}
	spec, ok := cfg.Remotes[name]
	if !ok {
		return fmt.Errorf("remote %q is not configured", name)
	}

	if flagRemoteEnabled && flagRemoteDisabled {
		return fmt.Errorf("--enable and --disable are mutually exclusive")
	}

	if flagRemoteURL != "" {
		if _, err := provider.ValidateBaseURL(flagRemoteURL, cfg.Security.AllowInsecureHTTP); err != nil {
			return exitWith(exitcode.ConfigError, err)
		}
		spec.APIURL = flagRemoteURL
	}
	if flagRemotePriority >= 0 {
		spec.Priority = flagRemotePriority
	}
	if flagRemoteEnabled {
		spec.Enabled = true
	}
	if flagRemoteDisabled {
		spec.Enabled = false
	}

	if flagRemoteToken != "" {
		host, herr := provider.HostFor(spec.Provider, spec.APIURL, cfg.Security.AllowInsecureHTTP)
		if herr != nil {
			return herr
		}
		store, serr := buildSecrets(cfg)
		if serr != nil {
			return serr
		}
		if err := store.Store(spec.Provider, host, spec.Username, flagRemoteToken); err != nil {
			return err
		}
	}

	cfg.Remotes[name] = spec
	if err := saveConfig(cfg, repoRoot); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated remote %s\n", name)
	return nil
}

// probeRemotes runs test_connection for each remote, printing one line
// per result, and returns the failure count.
func probeRemotes(cmd *cobra.Command, cfg *config.Config, store interface {
	Retrieve(provider, host, username string) (string, error)
}, remotes []config.Remote) int {
	out := cmd.OutOrStdout()
	failed := 0

	for _, r := range remotes {
		host, err := provider.HostFor(r.Spec.Provider, r.Spec.APIURL, cfg.Security.AllowInsecureHTTP)
		if err != nil {
			fmt.Fprintf(out, "  %-12s invalid: %v\n", r.Name, err)
			failed++
			continue
		}
		token, err := store.Retrieve(r.Spec.Provider, host, r.Spec.Username)
		if err != nil {
			fmt.Fprintf(out, "  %-12s no credential (%s@%s): %v\n", r.Name, r.Spec.Username, host, err)
			failed++
			continue
		}
		p, err := provider.New(r.Spec.Provider, r.Spec.Username, token, provider.Options{
			APIURL:            r.Spec.APIURL,
			AllowInsecureHTTP: cfg.Security.AllowInsecureHTTP,
		})
		if err != nil {
			fmt.Fprintf(out, "  %-12s %v\n", r.Name, err)
			failed++
			continue
		}

		status, err := p.TestConnection(cmd.Context())
		switch status {
		case provider.StatusOK:
			fmt.Fprintf(out, "  %-12s ok (%s@%s)\n", r.Name, r.Spec.Username, host)
		case provider.StatusRateLimited:
			rl, _ := p.RateLimit(context.Background())
			if rl.Known {
				fmt.Fprintf(out, "  %-12s rate limited (%d/%d, resets %s)\n", r.Name, rl.Remaining, rl.Limit, rl.ResetAt.Format("15:04:05"))
			} else {
				fmt.Fprintf(out, "  %-12s rate limited: %v\n", r.Name, err)
			}
			failed++
		default:
			fmt.Fprintf(out, "  %-12s %s: %v\n", r.Name, status, err)
			failed++
		}
	}
	return failed
}

// saveConfig writes to the repo config when inside a repository,
// otherwise to the user config.
func saveConfig(cfg *config.Config, repoRoot string) error {
	if repoRoot != "" {
		return config.SaveRepo(cfg, repoRoot)
	}
	return config.SaveUser(cfg, "")
}

// allRemotesOrdered lists every remote, enabled or not, in priority
// then name order.
func allRemotesOrdered(cfg *config.Config) []config.Remote {
	remotes := make([]config.Remote, 0, len(cfg.Remotes))
	for name, spec := range cfg.Remotes {
		remotes = append(remotes, config.Remote{Name: name, Spec: spec})
	}
	sort.Slice(remotes, func(i, j int) bool {
		if remotes[i].Spec.Priority != remotes[j].Spec.Priority {
			return remotes[i].Spec.Priority < remotes[j].Spec.Priority
		}
		return remotes[i].Name < remotes[j].Name
	})
	return remotes
}

func displayHost(spec config.RemoteSpec) string {
	if host := provider.DefaultHost(spec.Provider); host != "" && spec.APIURL == "" {
		return host
	}
	return spec.APIURL
}

// promptToken reads a token from stdin.
func promptToken(providerTag, username string) (string, error) {
	fmt.Fprintf(os.Stderr, "Token for %s@%s: ", username, providerTag)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("token must not be empty")
	}
	return token, nil
}

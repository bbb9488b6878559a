/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/internal/provider"
	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/exitcode"
	"github.com/multigit-dev/multigit/pkg/gitengine"
)

var flagPullFrom string

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the current branch from one remote",
	Long: `Pull fast-forwards the current branch from a single remote: the
primary source when configured, the highest-priority remote otherwise,
or the remote named with --from.`,
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
	pullCmd.Flags().StringVar(&flagPullFrom, "from", "", "Remote to pull from")
}

func runPull(cmd *cobra.Command, _ []string) error {
	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}
	if repoRoot == "" {
		return fmt.Errorf("not inside a git repository")
	}

	remote, err := pullSource(cfg, flagPullFrom)
	if err != nil {
		return err
	}

	engine, err := gitengine.Open(repoRoot)
	if err != nil {
		return err
	}
	branch, err := engine.CurrentBranch()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pullFrom(ctx, cfg, repoRoot, remote, branch); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pulled %s from %s\n", branch, remote.Name)
	return nil
}

// pullFrom fast-forwards branch from one remote, resolving the
// credential by host.
func pullFrom(ctx context.Context, cfg *config.Config, repoRoot string, remote config.Remote, branch string) error {
	engine, err := gitengine.Open(repoRoot)
	if err != nil {
		return err
	}

	store, err := buildSecrets(cfg)
	if err != nil {
		return err
	}
	host, err := provider.HostFor(remote.Spec.Provider, remote.Spec.APIURL, cfg.Security.AllowInsecureHTTP)
	if err != nil {
		return err
	}
	token, err := store.Retrieve(remote.Spec.Provider, host, remote.Spec.Username)
	if err != nil {
		return exitWith(exitcode.NetworkError, fmt.Errorf("credential lookup for %s: %w", remote.Name, err))
	}

	err = engine.Pull(ctx, remote.Name, branch, gitengine.Credential{
		Username: remote.Spec.Username,
		Token:    token,
	})
	if err != nil {
		if gitengine.KindOf(err) == gitengine.KindConflict {
			return exitWith(exitcode.ConflictError,
				fmt.Errorf("pull from %s is not a fast-forward; resolve divergence first: %w", remote.Name, err))
		}
		return exitWith(exitcode.NetworkError, err)
	}
	return nil
}

// pullSource picks the remote to pull from: --from, then
// sync.primary_source, then the first remote in priority order.
func pullSource(cfg *config.Config, from string) (config.Remote, error) {
	remotes := cfg.EnabledRemotes()
	if len(remotes) == 0 {
		return config.Remote{}, fmt.Errorf("no enabled remotes; run 'multigit remote add' first")
	}

	name := from
	if name == "" {
		name = cfg.Sync.PrimarySource
	}
	if name == "" {
		return remotes[0], nil
	}
	for _, r := range remotes {
		if r.Name == name {
			return r, nil
		}
	}
	return config.Remote{}, fmt.Errorf("remote %q is not configured or not enabled", name)
}

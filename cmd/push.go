/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/internal/orchestrator"
	"github.com/multigit-dev/multigit/pkg/gitengine"
)

var (
	flagPushBranch  string
	flagPushRemotes []string
	flagPushForce   bool
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push a branch to every enabled remote in parallel",
	RunE:  runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().StringVar(&flagPushBranch, "branch", "", "Branch to push (default: current branch)")
	pushCmd.Flags().StringSliceVar(&flagPushRemotes, "remotes", nil, "Comma-separated remote names (default: all enabled)")
	pushCmd.Flags().BoolVar(&flagPushForce, "force", false, "Allow non-fast-forward pushes")
}

func runPush(cmd *cobra.Command, _ []string) error {
	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}
	if repoRoot == "" {
		return fmt.Errorf("not inside a git repository")
	}

	remotes, err := selectRemotes(cfg.EnabledRemotes(), flagPushRemotes)
	if err != nil {
		return err
	}
	if len(remotes) == 0 {
		return fmt.Errorf("no enabled remotes; run 'multigit remote add' first")
	}

	branch := flagPushBranch
	if branch == "" {
		engine, err := gitengine.Open(repoRoot)
		if err != nil {
			return err
		}
		if branch, err = engine.CurrentBranch(); err != nil {
			return err
		}
	}
	if !cfg.BranchIncluded(branch) {
		return fmt.Errorf("branch %q is excluded by sync.include_branches/exclude_branches", branch)
	}

	store, err := buildSecrets(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(cfg, &orchestrator.GitOperator{
		RepoPath: repoRoot,
		Cfg:      cfg,
		Secrets:  store,
	}, repoRoot, auditLogger(cfg))

	agg := orch.PushAll(ctx, branch, remotes, flagPushForce)
	printAggregate(cmd.OutOrStdout(), "push", agg, jsonMode(cmd))

	if code := aggregateExitCode(agg); code != 0 {
		return exitWith(code, fmt.Errorf("push failed for %d of %d remotes", agg.Failed, len(agg.Results)))
	}
	return nil
}

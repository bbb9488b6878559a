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
)

var flagFetchAll bool

var fetchCmd = &cobra.Command{
	Use:   "fetch [remotes...]",
	Short: "Fetch from remotes in parallel",
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolVar(&flagFetchAll, "all", false, "Fetch from every enabled remote")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}
	if repoRoot == "" {
		return fmt.Errorf("not inside a git repository")
	}

	names := args
	if flagFetchAll {
		names = nil
	}
	remotes, err := selectRemotes(cfg.EnabledRemotes(), names)
	if err != nil {
		return err
	}
	if len(remotes) == 0 {
		return fmt.Errorf("no enabled remotes; run 'multigit remote add' first")
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

	agg := orch.FetchAll(ctx, remotes)
	printAggregate(cmd.OutOrStdout(), "fetch", agg, jsonMode(cmd))

	if code := aggregateExitCode(agg); code != 0 {
		return exitWith(code, fmt.Errorf("fetch failed for %d of %d remotes", agg.Failed, len(agg.Results)))
	}
	return nil
}

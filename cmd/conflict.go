/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/internal/conflict"
	"github.com/multigit-dev/multigit/internal/orchestrator"
	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/exitcode"
	"github.com/multigit-dev/multigit/pkg/gitengine"
)

var conflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Inspect and resolve divergence between remotes",
}

var conflictListCmd = &cobra.Command{
	Use:   "list",
	Short: "Fetch all remotes and list divergence",
	RunE:  runConflictList,
}

var flagResolveStrategy string

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve divergence with a chosen strategy",
	Long: `Resolve applies one of three strategies to diverged remotes:

  ours     force-push the local branch, overwriting the remote
  theirs   pull the remote branch, fast-forwarding or failing
  primary  pull from sync.primary_source, then push everywhere`,
	RunE: runConflictResolve,
}

func init() {
	rootCmd.AddCommand(conflictCmd)
	conflictCmd.AddCommand(conflictListCmd)
	conflictCmd.AddCommand(conflictResolveCmd)

	conflictResolveCmd.Flags().StringVar(&flagResolveStrategy, "strategy", "", "Resolution strategy: ours|theirs|primary")
	_ = conflictResolveCmd.MarkFlagRequired("strategy")
}

// conflictContext loads everything the conflict commands share.
func conflictContext(cmd *cobra.Command) (*config.Config, string, []config.Remote, *orchestrator.Orchestrator, error) {
	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return nil, "", nil, nil, err
	}
	if repoRoot == "" {
		return nil, "", nil, nil, fmt.Errorf("not inside a git repository")
	}
	remotes := cfg.EnabledRemotes()
	if len(remotes) == 0 {
		return nil, "", nil, nil, fmt.Errorf("no enabled remotes")
	}

	store, err := buildSecrets(cfg)
	if err != nil {
		return nil, "", nil, nil, err
	}
	orch := orchestrator.New(cfg, &orchestrator.GitOperator{
		RepoPath: repoRoot,
		Cfg:      cfg,
		Secrets:  store,
	}, repoRoot, auditLogger(cfg))
	return cfg, repoRoot, remotes, orch, nil
}

func runConflictList(cmd *cobra.Command, _ []string) error {
	cfg, repoRoot, remotes, orch, err := conflictContext(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Classification needs fresh remote-tracking refs.
	fetch := orch.FetchAll(ctx, remotes)

	engine, err := gitengine.Open(repoRoot)
	if err != nil {
		return err
	}
	branch, err := engine.CurrentBranch()
	if err != nil {
		return err
	}

	names := make([]string, len(remotes))
	for i, r := range remotes {
		names[i] = r.Name
	}
	report, err := conflict.Detect(engine, branch, names)
	if err != nil {
		return err
	}

	primary := remotes[0].Name
	plan := conflict.BuildPlan(report, cfg.Sync, primary)

	out := cmd.OutOrStdout()
	if jsonMode(cmd) {
		return json.NewEncoder(out).Encode(map[string]interface{}{
			"fetch":     fetch,
			"conflicts": report,
			"plan":      plan,
		})
	}

	fmt.Fprintf(out, "Branch %s:\n", branch)
	for i, s := range report.States {
		fmt.Fprintf(out, "  %-12s %-14s ahead %d, behind %d", s.Remote, s.Classification, s.Ahead, s.Behind)
		if step := plan.Steps[i]; step.Reason != "" {
			fmt.Fprintf(out, "  -> %s (%s)", step.Action, step.Reason)
		}
		fmt.Fprintln(out)
	}

	if report.HasDivergence() {
		return exitWith(exitcode.ConflictError, fmt.Errorf("divergence detected on branch %s", branch))
	}
	return nil
}

func runConflictResolve(cmd *cobra.Command, _ []string) error {
	cfg, repoRoot, remotes, orch, err := conflictContext(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := gitengine.Open(repoRoot)
	if err != nil {
		return err
	}
	branch, err := engine.CurrentBranch()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch flagResolveStrategy {
	case "ours":
		// Local wins: overwrite every remote.
		agg := orch.PushAll(ctx, branch, remotes, true)
		printAggregate(out, "force-push", agg, jsonMode(cmd))
		if !agg.AllSucceeded() {
			return exitWith(aggregateExitCode(agg), fmt.Errorf("force-push failed for %d remotes", agg.Failed))
		}
		return nil

	case "theirs":
		// Remote wins: pull from the chosen source.
		source, err := pullSource(cfg, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pulling %s from %s\n", branch, source.Name)
		return pullFrom(ctx, cfg, repoRoot, source, branch)

	case "primary":
		if cfg.Sync.PrimarySource == "" {
			return exitWith(exitcode.ConfigError, fmt.Errorf("sync.primary_source is not set"))
		}
		source, err := pullSource(cfg, cfg.Sync.PrimarySource)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pulling %s from %s, then pushing everywhere\n", branch, source.Name)
		if err := pullFrom(ctx, cfg, repoRoot, source, branch); err != nil {
			return err
		}
		agg := orch.PushAll(ctx, branch, remotes, false)
		printAggregate(out, "push", agg, jsonMode(cmd))
		if !agg.AllSucceeded() {
			return exitWith(aggregateExitCode(agg), fmt.Errorf("push failed for %d remotes", agg.Failed))
		}
		return nil

	default:
		return fmt.Errorf("unknown strategy %q: expected ours, theirs, or primary", flagResolveStrategy)
	}
}

/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/internal/orchestrator"
	"github.com/multigit-dev/multigit/pkg/exitcode"
)

var (
	flagSyncDryRun         bool
	flagSyncBranch         string
	flagSyncForce          bool
	flagSyncNonInteractive bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch all remotes, detect conflicts, then push where safe",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&flagSyncDryRun, "dry-run", false, "Report what would happen without pushing")
	syncCmd.Flags().StringVar(&flagSyncBranch, "branch", "", "Branch to sync (default: current branch)")
	syncCmd.Flags().BoolVar(&flagSyncForce, "force", false, "Proceed past dirty worktree and divergence checks")
	syncCmd.Flags().BoolVar(&flagSyncNonInteractive, "non-interactive", false, "Never prompt (daemon mode)")
	_ = syncCmd.Flags().MarkHidden("non-interactive")
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}
	if repoRoot == "" {
		return fmt.Errorf("not inside a git repository")
	}

	remotes := cfg.EnabledRemotes()
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

	report, err := orch.Sync(ctx, remotes, orchestrator.SyncOptions{
		Branch: flagSyncBranch,
		DryRun: flagSyncDryRun,
		Force:  flagSyncForce,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonMode(cmd) {
		if err := json.NewEncoder(out).Encode(report); err != nil {
			return err
		}
	} else {
		printSyncReport(out, report)
	}

	switch {
	case report.Blocked:
		return exitWith(exitcode.ConflictError,
			fmt.Errorf("sync blocked: divergence detected on branch %s; see 'multigit conflict list'", report.Branch))
	case report.Pushed && !report.Push.AllSucceeded():
		return exitWith(aggregateExitCode(report.Push),
			fmt.Errorf("sync pushed with failures: %d of %d remotes failed", report.Push.Failed, len(report.Push.Results)))
	case !report.Fetch.AllSucceeded():
		return exitWith(aggregateExitCode(report.Fetch),
			fmt.Errorf("sync fetched with failures: %d of %d remotes failed", report.Fetch.Failed, len(report.Fetch.Results)))
	}
	return nil
}

func printSyncReport(out io.Writer, report *orchestrator.SyncReport) {
	fmt.Fprintf(out, "Sync of branch %s\n\nFetch:\n", report.Branch)
	printAggregate(out, "fetch", report.Fetch, false)

	if report.Report != nil {
		fmt.Fprintln(out, "\nBranch state:")
		for _, s := range report.Report.States {
			fmt.Fprintf(out, "  %-12s %-14s ahead %d, behind %d\n", s.Remote, s.Classification, s.Ahead, s.Behind)
		}
	}

	switch {
	case report.Blocked:
		fmt.Fprintln(out, "\nPush blocked by conflict plan:")
		for _, step := range report.Plan.Steps {
			if step.Reason != "" {
				fmt.Fprintf(out, "  %-12s %s: %s\n", step.Remote, step.Action, step.Reason)
			}
		}
	case !report.Pushed:
		fmt.Fprintln(out, "\nDry run: push skipped")
	default:
		fmt.Fprintln(out, "\nPush:")
		printAggregate(out, "push", report.Push, false)
	}
}

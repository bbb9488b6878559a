/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/internal/conflict"
	"github.com/multigit-dev/multigit/pkg/gitengine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show branch state against each remote",
	Long: `Status classifies the current branch against the remote-tracking
reference of every enabled remote. It reads only local state; run
'multigit fetch --all' first for fresh data.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}
	if repoRoot == "" {
		return fmt.Errorf("not inside a git repository")
	}

	engine, err := gitengine.Open(repoRoot)
	if err != nil {
		return err
	}
	branch, err := engine.CurrentBranch()
	if err != nil {
		return err
	}
	clean, err := engine.WorkingDirClean()
	if err != nil {
		return err
	}

	remotes := cfg.EnabledRemotes()
	names := make([]string, len(remotes))
	for i, r := range remotes {
		names[i] = r.Name
	}

	report, err := conflict.Detect(engine, branch, names)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonMode(cmd) {
		return json.NewEncoder(out).Encode(map[string]interface{}{
			"branch":   branch,
			"clean":    clean,
			"remotes":  report.States,
			"diverged": report.HasDivergence(),
		})
	}

	fmt.Fprintf(out, "Branch %s", branch)
	if !clean {
		fmt.Fprint(out, " (uncommitted changes)")
	}
	fmt.Fprintln(out)

	if len(report.States) == 0 {
		fmt.Fprintln(out, "No enabled remotes")
		return nil
	}

	rows := make([][3]string, 0, len(report.States))
	for _, s := range report.States {
		detail := ""
		switch s.Classification {
		case conflict.LocalAhead:
			detail = fmt.Sprintf("%d to push", s.Ahead)
		case conflict.RemoteAhead:
			detail = fmt.Sprintf("%d to pull", s.Behind)
		case conflict.Diverged:
			detail = fmt.Sprintf("%d ahead, %d behind", s.Ahead, s.Behind)
		}
		rows = append(rows, [3]string{s.Remote, string(s.Classification), detail})
	}
	printColumns(out, rows)
	return nil
}

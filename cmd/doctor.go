/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/pkg/exitcode"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Probe every enabled remote and report failures",
	Long: `Doctor runs a connection test against each enabled remote and
classifies the outcome: ok, auth-failed, network-error, or
rate-limited. Rate-limited remotes include the reset time when the
provider reports one.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadEffectiveConfig(nil)
	if err != nil {
		return err
	}

	remotes := cfg.EnabledRemotes()
	if len(remotes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No enabled remotes to check")
		return nil
	}

	store, err := buildSecrets(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Checking %d remotes:\n", len(remotes))
	failed := probeRemotes(cmd, cfg, store, remotes)
	if failed > 0 {
		return exitWith(exitcode.NetworkError, fmt.Errorf("%d of %d remotes failed", failed, len(remotes)))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "All remotes healthy")
	return nil
}

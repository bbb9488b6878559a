/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the repository-local configuration file",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	repoRoot := findRepoRoot()
	if repoRoot == "" {
		return fmt.Errorf("not inside a git repository; run 'git init' first")
	}

	path := filepath.Join(repoRoot, filepath.FromSlash(config.RepoConfigPath))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", config.RepoConfigPath)
	}

	cfg, err := config.Load(config.LoadOptions{})
	if err != nil {
		return err
	}
	if err := config.SaveRepo(cfg, repoRoot); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", config.RepoConfigPath)
	return nil
}

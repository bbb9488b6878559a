/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at release time via -ldflags.
var Version = "0.4.0-dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "multigit %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/multigit-dev/multigit/internal/daemon"
	"github.com/multigit-dev/multigit/pkg/config"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Background sync daemon",
}

var flagDaemonInterval string

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	Long: `Start runs the sync daemon: a single-instance scheduler that
periodically syncs the repository with every enabled remote. The
process stays in the foreground; use your service manager to run it in
the background. Sync runs only while sync.auto_sync is enabled.`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

var flagDaemonLogLines int

var daemonLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show daemon log output",
	RunE:  runDaemonLogs,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonLogsCmd)

	daemonStartCmd.Flags().StringVar(&flagDaemonInterval, "interval", "", "Sync interval with s/m/h suffix (default: daemon.interval)")
	daemonLogsCmd.Flags().IntVar(&flagDaemonLogLines, "lines", 50, "Number of log lines to show")
}

func newDaemonService() (*daemon.Service, error) {
	cfg, repoRoot, err := loadEffectiveConfig(nil)
	if err != nil {
		return nil, err
	}

	intervalStr := flagDaemonInterval
	if intervalStr == "" {
		intervalStr = cfg.Daemon.Interval
	}
	interval, err := daemon.ParseInterval(intervalStr)
	if err != nil {
		return nil, err
	}

	dir, err := config.EnsureUserConfigDir()
	if err != nil {
		return nil, err
	}

	logPath := cfg.Daemon.LogFile
	if logPath == "" {
		logPath = filepath.Join(dir, "daemon.log")
	}

	return daemon.NewService(daemon.Options{
		PIDPath:    filepath.Join(dir, "daemon.pid"),
		LogPath:    logPath,
		Interval:   interval,
		RepoPath:   repoRoot,
		UserConfig: filepath.Join(dir, "config.toml"),
	})
}

func runDaemonStart(cmd *cobra.Command, _ []string) error {
	svc, err := newDaemonService()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx)
}

func runDaemonStop(cmd *cobra.Command, _ []string) error {
	svc, err := newDaemonService()
	if err != nil {
		return err
	}
	if err := svc.Stop(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	svc, err := newDaemonService()
	if err != nil {
		return err
	}

	running, pid := svc.Status()
	if running {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon running (pid %d)\n", pid)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon not running")
	}
	return nil
}

func runDaemonLogs(cmd *cobra.Command, _ []string) error {
	svc, err := newDaemonService()
	if err != nil {
		return err
	}

	lines, err := daemon.TailLog(svc.LogPath(), flagDaemonLogLines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

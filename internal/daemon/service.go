package daemon

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/logger"
)

// Service is the background daemon: one PID file, one scheduler, and a
// redacted log file. Each tick performs a sync by re-invoking the
// multigit binary as a subprocess, so no repository handle ever crosses
// goroutines.
type Service struct {
	pidFile    *PIDFile
	logPath    string
	interval   time.Duration
	repoPath   string
	userConfig string

	cfg atomic.Pointer[config.Config]
}

// Options configures the daemon service.
type Options struct {
	// PIDPath defaults to <UserConfigDir>/daemon.pid.
	PIDPath string
	// LogPath defaults to <UserConfigDir>/daemon.log.
	LogPath string
	// Interval between sync ticks.
	Interval time.Duration
	// RepoPath is the repository the daemon syncs.
	RepoPath string
	// UserConfig is the user config file watched for reloads; empty
	// disables the watch.
	UserConfig string
}

// NewService builds a daemon service.
func NewService(opts Options) (*Service, error) {
	if opts.PIDPath == "" || opts.LogPath == "" {
		dir, err := config.EnsureUserConfigDir()
		if err != nil {
			return nil, err
		}
		if opts.PIDPath == "" {
			opts.PIDPath = filepath.Join(dir, "daemon.pid")
		}
		if opts.LogPath == "" {
			opts.LogPath = filepath.Join(dir, "daemon.log")
		}
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}

	return &Service{
		pidFile:    NewPIDFile(opts.PIDPath),
		logPath:    opts.LogPath,
		interval:   opts.Interval,
		repoPath:   opts.RepoPath,
		userConfig: opts.UserConfig,
	}, nil
}

// Run starts the daemon and blocks until ctx is canceled. The PID file
// is acquired first and removed on the way out.
func (s *Service) Run(ctx context.Context) error {
	if err := s.pidFile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := s.pidFile.Release(); err != nil {
			logger.Error("Failed to remove pid file", logger.Err(err))
		}
	}()

	logFile, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	// Everything the daemon logs goes through the redactor first.
	logger.SetOutput(NewRedactingWriter(logFile))
	logger.Info("Daemon starting",
		logger.Int("pid", os.Getpid()),
		logger.Duration("interval", s.interval))

	if err := s.loadConfig(); err != nil {
		logger.Warn("Initial config load failed; ticks are skipped until it parses", logger.Err(err))
	}

	stopWatch, err := s.watchConfig(ctx)
	if err != nil {
		logger.Warn("Config watch unavailable; using startup snapshot", logger.Err(err))
	} else {
		defer stopWatch()
	}

	err = NewScheduler(s.interval).Run(ctx, s.tick)
	if errors.Is(err, context.Canceled) {
		logger.Info("Daemon shut down cleanly")
		return nil
	}
	return err
}

// loadConfig refreshes the config snapshot used to gate ticks.
func (s *Service) loadConfig() error {
	cfg, err := config.Load(config.LoadOptions{UserFile: s.userConfig, RepoRoot: s.repoPath})
	if err != nil {
		return err
	}
	s.cfg.Store(cfg)
	return nil
}

// watchConfig reloads the snapshot whenever the user config file
// changes, so the daemon follows edits without polling or signals.
func (s *Service) watchConfig(ctx context.Context) (func(), error) {
	if s.userConfig == "" {
		return nil, errors.New("no user config file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files rather than write in
	// place, which drops file-level watches.
	if err := watcher.Add(filepath.Dir(s.userConfig)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.userConfig {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.loadConfig(); err != nil {
					logger.Warn("Config reload failed", logger.Err(err))
				} else {
					logger.Info("Configuration reloaded")
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", logger.Err(werr))
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}

// tick performs one scheduled sync.
func (s *Service) tick(ctx context.Context) error {
	cfg := s.cfg.Load()
	if cfg == nil {
		if err := s.loadConfig(); err != nil {
			return err
		}
		cfg = s.cfg.Load()
	}
	if !cfg.Sync.AutoSync {
		logger.Debug("auto_sync disabled; skipping tick")
		return nil
	}

	logger.Info("Running scheduled sync")
	return s.runSyncSubprocess(ctx)
}

// runSyncSubprocess invokes this binary's sync command. Output is
// captured into the daemon log through the redactor.
func (s *Service) runSyncSubprocess(ctx context.Context) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate multigit binary: %w", err)
	}

	cmd := exec.CommandContext(ctx, self, "sync", "--non-interactive", "--json")
	cmd.Dir = s.repoPath
	out, err := cmd.CombinedOutput()
	for _, line := range splitOutput(out) {
		logger.Info("[sync] " + line)
	}
	if err != nil {
		return fmt.Errorf("sync subprocess: %w", err)
	}
	return nil
}

func splitOutput(out []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Status reports whether a daemon is live and its PID.
func (s *Service) Status() (bool, int) {
	return s.pidFile.IsRunning()
}

// LogPath returns the daemon log location.
func (s *Service) LogPath() string { return s.logPath }

// Stop signals a running daemon with SIGTERM.
func (s *Service) Stop() error {
	running, pid := s.pidFile.IsRunning()
	if !running {
		return ErrNotRunning
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	logger.Info("Sent SIGTERM to daemon", logger.Int("pid", pid))
	return nil
}

// TailLog returns the last n lines of the daemon log.
func TailLog(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	lines := splitOutput(data)
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/multigit-dev/multigit/pkg/logger"
)

// ParseInterval parses a daemon interval with an s/m/h suffix and
// rejects non-positive values.
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("invalid interval %q: must be at least 1s", s)
	}
	return d, nil
}

// Scheduler fires a task on a monotonic interval. The task runs on the
// scheduler's goroutine, so a tick that arrives while the previous run
// is still in flight is dropped rather than overlapped.
type Scheduler struct {
	interval time.Duration
}

// NewScheduler creates a scheduler with the given interval.
func NewScheduler(interval time.Duration) *Scheduler {
	return &Scheduler{interval: interval}
}

// Run fires task every interval until ctx is canceled. Task errors are
// logged and do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context, task func(context.Context) error) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("Scheduler started", logger.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := task(ctx); err != nil {
				logger.Error("Scheduled task failed", logger.Err(err))
			}
		}
	}
}

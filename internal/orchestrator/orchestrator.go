// Package orchestrator fans multi-remote git operations out across
// bounded-parallel tasks and aggregates their results.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/multigit-dev/multigit/internal/conflict"
	"github.com/multigit-dev/multigit/pkg/audit"
	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/gitengine"
	"github.com/multigit-dev/multigit/pkg/logger"
)

// Operator performs the per-remote work. The production implementation
// opens one repository handle per call; tests inject instrumented
// fakes.
type Operator interface {
	// Fetch refreshes remote-tracking refs, returning the updated count.
	Fetch(ctx context.Context, remote config.Remote) (int, error)
	// Push sends branch to the remote.
	Push(ctx context.Context, remote config.Remote, branch string, force bool) error
}

// maxBackoff caps the retry backoff delay.
const maxBackoff = 30 * time.Second

// Orchestrator runs fetch/push/sync fan-outs under one concurrency
// bound.
type Orchestrator struct {
	cfg      *config.Config
	op       Operator
	repoPath string
	audit    *audit.Logger

	// backoffBase is the first retry delay; tests shrink it.
	backoffBase time.Duration
}

// New creates an orchestrator over op bounded by
// settings.max_parallel.
func New(cfg *config.Config, op Operator, repoPath string, auditLog *audit.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		op:          op,
		repoPath:    repoPath,
		audit:       auditLog,
		backoffBase: time.Second,
	}
}

// maxParallel returns the effective concurrency bound.
func (o *Orchestrator) maxParallel() int64 {
	n := o.cfg.Settings.MaxParallel
	if n < 1 {
		n = 1
	}
	if !o.cfg.Settings.ParallelPush {
		n = 1
	}
	return int64(n)
}

// FetchAll fetches from every remote in parallel. The aggregate always
// completes; per-remote failures are captured, never raised.
func (o *Orchestrator) FetchAll(ctx context.Context, remotes []config.Remote) *Aggregate {
	return o.fanOut(ctx, remotes, "fetch", func(ctx context.Context, remote config.Remote) (int, string, error) {
		updates, err := o.op.Fetch(ctx, remote)
		if err != nil {
			return 0, "", err
		}
		return updates, fmt.Sprintf("fetched %d updated refs", updates), nil
	})
}

// PushAll pushes branch to every remote in parallel.
func (o *Orchestrator) PushAll(ctx context.Context, branch string, remotes []config.Remote, force bool) *Aggregate {
	return o.fanOut(ctx, remotes, "push", func(ctx context.Context, remote config.Remote) (int, string, error) {
		if err := o.op.Push(ctx, remote, branch, force); err != nil {
			return 0, "", err
		}
		return 0, fmt.Sprintf("pushed %s", branch), nil
	})
}

// fanOut spawns one task per remote gated by a counting semaphore, so
// at no point do more than max_parallel tasks run. Results land at the
// index of their input remote, keeping aggregate order deterministic.
func (o *Orchestrator) fanOut(ctx context.Context, remotes []config.Remote, opName string, fn func(context.Context, config.Remote) (int, string, error)) *Aggregate {
	sem := semaphore.NewWeighted(o.maxParallel())
	results := make([]Result, len(remotes))

	var g errgroup.Group
	for i, remote := range remotes {
		g.Go(func() error {
			results[i] = o.runTask(ctx, sem, remote, opName, fn)
			return nil
		})
	}
	_ = g.Wait()

	agg := tally(results)
	logger.Info("Fan-out complete",
		logger.String("op", opName),
		logger.Int("succeeded", agg.Succeeded),
		logger.Int("failed", agg.Failed))
	return agg
}

// runTask executes one per-remote pipeline: acquire permit, run the
// operation, classify, retry once when policy allows, release permit.
func (o *Orchestrator) runTask(ctx context.Context, sem *semaphore.Weighted, remote config.Remote, opName string, fn func(context.Context, config.Remote) (int, string, error)) Result {
	start := time.Now()
	result := Result{Remote: remote.Name, Provider: remote.Spec.Provider}

	if err := sem.Acquire(ctx, 1); err != nil {
		result.Duration = time.Since(start)
		result.ErrorKind = KindCanceled
		result.Message = "canceled before start"
		return result
	}
	defer sem.Release(1)

	const maxAttempts = 2
	var updates int
	var message string
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		updates, message, err = fn(ctx, remote)
		if err == nil {
			break
		}

		kind := classifyError(err)
		if attempt == maxAttempts || !kind.Retryable() {
			break
		}

		delay := o.backoff(attempt)
		logger.Warn("Retrying after transient failure",
			logger.String("op", opName),
			logger.String("remote", remote.Name),
			logger.String("kind", string(kind)),
			logger.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			result.Duration = time.Since(start)
			result.ErrorKind = KindCanceled
			result.Message = "canceled during retry wait"
			return result
		}
	}

	result.Duration = time.Since(start)
	if err != nil {
		result.ErrorKind = classifyError(err)
		result.Message = err.Error()
		logger.Warn("Remote task failed",
			logger.String("op", opName),
			logger.String("remote", remote.Name),
			logger.String("kind", string(result.ErrorKind)),
			logger.Err(err))
		return result
	}

	result.Success = true
	result.Updates = updates
	result.Message = message
	return result
}

// backoff is exponential from backoffBase, capped at 30s.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	delay := o.backoffBase << (attempt - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// SyncOptions parameterizes one sync run.
type SyncOptions struct {
	Branch string
	DryRun bool
	Force  bool
}

// SyncReport combines the phases of one sync run.
type SyncReport struct {
	Branch string           `json:"branch"`
	Fetch  *Aggregate       `json:"fetch"`
	Report *conflict.Report `json:"conflicts,omitempty"`
	Plan   *conflict.Plan   `json:"plan,omitempty"`
	Push   *Aggregate       `json:"push,omitempty"`
	Pushed bool             `json:"pushed"`
	// Blocked is set when the conflict plan refused the push phase.
	Blocked bool `json:"blocked"`
}

// Sync runs the full pipeline: preflight, fetch-all, conflict
// detection, then push-all when the plan permits and dry_run is off.
func (o *Orchestrator) Sync(ctx context.Context, remotes []config.Remote, opts SyncOptions) (*SyncReport, error) {
	o.audit.Record(audit.EventSyncStart, opts.Branch, true)

	engine, err := gitengine.Open(o.repoPath)
	if err != nil {
		o.audit.Record(audit.EventSyncEnd, opts.Branch, false)
		return nil, err
	}

	branch := opts.Branch
	if branch == "" {
		branch = o.cfg.Settings.DefaultBranch
		if current, berr := engine.CurrentBranch(); berr == nil {
			branch = current
		}
	}

	if !opts.Force {
		clean, cerr := engine.WorkingDirClean()
		if cerr != nil {
			o.audit.Record(audit.EventSyncEnd, branch, false)
			return nil, cerr
		}
		if !clean {
			o.audit.Record(audit.EventSyncEnd, branch, false)
			return nil, fmt.Errorf("working directory has uncommitted changes; commit, stash, or use --force")
		}
	}

	report := &SyncReport{Branch: branch}
	report.Fetch = o.FetchAll(ctx, remotes)

	names := make([]string, len(remotes))
	for i, r := range remotes {
		names[i] = r.Name
	}
	conflicts, err := conflict.Detect(engine, branch, names)
	if err != nil {
		o.audit.Record(audit.EventSyncEnd, branch, false)
		return nil, err
	}
	report.Report = conflicts

	primary := ""
	if len(remotes) > 0 {
		primary = remotes[0].Name
	}
	report.Plan = conflict.BuildPlan(conflicts, o.cfg.Sync, primary)

	if !report.Plan.PushAllowed && !opts.Force {
		report.Blocked = true
		o.audit.Record(audit.EventSyncEnd, branch, false)
		return report, nil
	}

	if opts.DryRun {
		o.audit.Record(audit.EventSyncEnd, branch, true)
		return report, nil
	}

	report.Push = o.PushAll(ctx, branch, remotes, opts.Force)
	report.Pushed = true
	o.audit.Record(audit.EventSyncEnd, branch, report.Push.AllSucceeded())
	return report, nil
}

package gitengine

import (
	"context"
	"sync/atomic"
	"time"
)

// watchdog returns a context bounded by the engine timeout plus a
// progress sink that re-checks the wall clock on every transfer tick.
// The tick check catches transfers that are moving but slow; the
// deadline catches remotes that stall silently and never tick.
func (e *Engine) watchdog(parent context.Context) (context.Context, context.CancelFunc, *progressSink) {
	ctx, cancel := context.WithTimeoutCause(parent, e.timeout, ErrTimeout)
	sink := &progressSink{
		start:   time.Now(),
		timeout: e.timeout,
		cancel:  cancel,
	}
	return ctx, cancel, sink
}

// progressSink receives sideband progress from the transport. Each
// write is a liveness tick; when total elapsed time exceeds the budget
// the sink aborts the transfer by failing the write and cancelling the
// operation context.
type progressSink struct {
	start    time.Time
	timeout  time.Duration
	cancel   context.CancelFunc
	timedOut atomic.Bool
}

func (s *progressSink) Write(p []byte) (int, error) {
	if time.Since(s.start) > s.timeout {
		s.timedOut.Store(true)
		s.cancel()
		return 0, ErrTimeout
	}
	return len(p), nil
}

// TimedOut reports whether the sink aborted the transfer.
func (s *progressSink) TimedOut() bool {
	return s.timedOut.Load()
}

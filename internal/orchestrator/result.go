package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/multigit-dev/multigit/internal/provider"
	"github.com/multigit-dev/multigit/pkg/gitengine"
	"github.com/multigit-dev/multigit/pkg/secrets"
)

// ErrorKind tags a failed per-remote result for retry and exit-code
// policy.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindAuth           ErrorKind = "auth"
	KindNetwork        ErrorKind = "network"
	KindTimeout        ErrorKind = "timeout"
	KindRateLimited    ErrorKind = "rate-limited"
	KindNonFastForward ErrorKind = "non-fast-forward"
	KindNotFound       ErrorKind = "not-found"
	KindConflict       ErrorKind = "conflict"
	KindCanceled       ErrorKind = "canceled"
	KindInternal       ErrorKind = "internal"
)

// Retryable reports whether a task failing with this kind may be
// retried.
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindTimeout || k == KindRateLimited
}

// Result is the outcome of one per-remote task. Task errors are always
// captured here, never thrown across tasks.
type Result struct {
	Remote    string        `json:"remote"`
	Provider  string        `json:"provider"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message,omitempty"`
	Updates   int           `json:"updates,omitempty"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Attempts  int           `json:"attempts"`
}

// Aggregate collects every per-remote result, ordered by the input
// remote order regardless of completion order.
type Aggregate struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

// AllSucceeded reports whether every per-remote task succeeded.
func (a *Aggregate) AllSucceeded() bool {
	return a.Failed == 0
}

func tally(results []Result) *Aggregate {
	agg := &Aggregate{Results: results}
	for _, r := range results {
		if r.Success {
			agg.Succeeded++
		} else {
			agg.Failed++
		}
	}
	return agg
}

// classifyError maps engine, credential, and provider errors onto the
// result taxonomy.
func classifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, secrets.ErrNotFound),
		errors.Is(err, secrets.ErrBackendUnavailable),
		errors.Is(err, secrets.ErrCrypto):
		return KindAuth
	case provider.IsRateLimit(err):
		return KindRateLimited
	case provider.IsAuth(err):
		return KindAuth
	}

	switch gitengine.KindOf(err) {
	case gitengine.KindAuth:
		return KindAuth
	case gitengine.KindNetwork:
		return KindNetwork
	case gitengine.KindTimeout:
		return KindTimeout
	case gitengine.KindNonFastForward:
		return KindNonFastForward
	case gitengine.KindNotFound:
		return KindNotFound
	case gitengine.KindConflict:
		return KindConflict
	}

	if provider.IsNetwork(err) {
		return KindNetwork
	}
	return KindInternal
}

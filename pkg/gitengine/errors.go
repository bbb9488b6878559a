package gitengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Kind classifies an operation failure for retry and reporting policy.
type Kind string

const (
	KindAuth           Kind = "auth"
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindNonFastForward Kind = "non-fast-forward"
	KindNotFound       Kind = "not-found"
	KindConflict       Kind = "conflict"
	KindOther          Kind = "other"
)

// Retryable reports whether an error of this kind may be retried.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindTimeout
}

var (
	// ErrNotARepository indicates the path does not contain a git
	// repository.
	ErrNotARepository = errors.New("not a git repository")

	// ErrDetachedHead indicates HEAD does not point at a branch.
	ErrDetachedHead = errors.New("HEAD is detached")

	// ErrTimeout indicates the operation exceeded its wall-time budget.
	ErrTimeout = errors.New("git operation timed out")
)

// OpError wraps a git operation failure with its classification.
type OpError struct {
	Op      string
	Remote  string
	Kind    Kind
	Wrapped error
}

func (e *OpError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("git %s %s: %v", e.Op, e.Remote, e.Wrapped)
	}
	return fmt.Sprintf("git %s: %v", e.Op, e.Wrapped)
}

func (e *OpError) Unwrap() error { return e.Wrapped }

// KindOf extracts the classification from err, defaulting to KindOther.
func KindOf(err error) Kind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return classify(err)
}

// classify maps library and transport errors onto the taxonomy.
func classify(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return KindAuth
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, git.ErrRemoteNotFound),
		errors.Is(err, git.ErrBranchNotFound):
		return KindNotFound
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "non-fast-forward"):
		return KindNonFastForward
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection reset"):
		return KindNetwork
	}
	return KindOther
}

func opError(op, remote string, err error) error {
	return &OpError{Op: op, Remote: remote, Kind: classify(err), Wrapped: err}
}

// Package conflict classifies per-remote branch divergence after a
// fetch and derives a resolution plan from the configured strategy.
package conflict

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/multigit-dev/multigit/pkg/gitengine"
)

// Classification of one remote×branch pair. Total and exclusive: every
// (local, remote) tip pair maps to exactly one class.
type Classification string

const (
	MissingLocal  Classification = "missing-local"
	MissingRemote Classification = "missing-remote"
	InSync        Classification = "in-sync"
	LocalAhead    Classification = "local-ahead"
	RemoteAhead   Classification = "remote-ahead"
	Diverged      Classification = "diverged"
)

// BranchState is the divergence state of one branch against one remote.
type BranchState struct {
	Remote         string         `json:"remote"`
	Branch         string         `json:"branch"`
	LocalOID       string         `json:"local_oid,omitempty"`
	RemoteOID      string         `json:"remote_oid,omitempty"`
	Ahead          int            `json:"ahead"`
	Behind         int            `json:"behind"`
	Classification Classification `json:"classification"`
}

// PushSafe reports whether a non-forcing push to this remote is
// allowed. Anything but in-sync or local-ahead blocks it.
func (s BranchState) PushSafe() bool {
	return s.Classification == InSync || s.Classification == LocalAhead || s.Classification == MissingRemote
}

// Report is the ordered per-remote divergence listing.
type Report struct {
	Branch string        `json:"branch"`
	States []BranchState `json:"states"`
}

// HasDivergence reports whether any remote is diverged.
func (r *Report) HasDivergence() bool {
	for _, s := range r.States {
		if s.Classification == Diverged {
			return true
		}
	}
	return false
}

// Detect classifies branch against each remote, in input order. The
// remote-tracking references must have been refreshed by a prior fetch;
// Detect itself performs no network traffic and mutates nothing.
func Detect(engine *gitengine.Engine, branch string, remotes []string) (*Report, error) {
	localTip, err := engine.BranchTip(branch)
	if err != nil {
		return nil, err
	}

	report := &Report{Branch: branch, States: make([]BranchState, 0, len(remotes))}
	for _, remote := range remotes {
		state, err := classifyRemote(engine, branch, remote, localTip)
		if err != nil {
			return nil, fmt.Errorf("classify %s: %w", remote, err)
		}
		report.States = append(report.States, state)
	}
	return report, nil
}

func classifyRemote(engine *gitengine.Engine, branch, remote string, localTip plumbing.Hash) (BranchState, error) {
	state := BranchState{Remote: remote, Branch: branch}

	if localTip == plumbing.ZeroHash {
		state.Classification = MissingLocal
		return state, nil
	}
	state.LocalOID = localTip.String()

	remoteTip, err := engine.RemoteTrackingTip(remote, branch)
	if err != nil {
		return state, err
	}
	if remoteTip == plumbing.ZeroHash {
		state.Classification = MissingRemote
		return state, nil
	}
	state.RemoteOID = remoteTip.String()

	ahead, behind, err := engine.GraphAheadBehind(localTip, remoteTip)
	if err != nil {
		return state, err
	}
	state.Ahead = ahead
	state.Behind = behind
	state.Classification = Classify(ahead, behind)
	return state, nil
}

// Classify maps an (ahead, behind) pair onto its class. Both tips are
// known to exist by the time this runs.
func Classify(ahead, behind int) Classification {
	switch {
	case ahead == 0 && behind == 0:
		return InSync
	case ahead > 0 && behind == 0:
		return LocalAhead
	case ahead == 0 && behind > 0:
		return RemoteAhead
	default:
		return Diverged
	}
}

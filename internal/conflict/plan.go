package conflict

import (
	"fmt"

	"github.com/multigit-dev/multigit/pkg/config"
)

// Action is the recommended next step for one remote.
type Action string

const (
	ActionNone      Action = "none"
	ActionPush      Action = "push"
	ActionPull      Action = "pull"
	ActionMerge     Action = "merge"
	ActionRebase    Action = "rebase"
	ActionForcePush Action = "force-push"
	ActionManual    Action = "manual"
)

// Step is the plan entry for one remote.
type Step struct {
	Remote string `json:"remote"`
	Action Action `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// Plan is the resolution advice derived from a Report and the
// configured strategy.
type Plan struct {
	Strategy string `json:"strategy"`
	// PushAllowed reports whether a non-forcing push-all may proceed.
	PushAllowed bool   `json:"push_allowed"`
	Steps       []Step `json:"steps"`
}

// BuildPlan derives the resolution plan for report under the given sync
// configuration. primary names the tie-breaking remote for merge/rebase
// strategies; when the config sets none, the first remote in priority
// order is used.
func BuildPlan(report *Report, sync config.SyncConfig, primary string) *Plan {
	if sync.PrimarySource != "" {
		primary = sync.PrimarySource
	}

	plan := &Plan{Strategy: sync.Strategy, PushAllowed: true}
	for _, state := range report.States {
		step := Step{Remote: state.Remote}

		switch state.Classification {
		case InSync:
			step.Action = ActionNone
		case MissingRemote:
			step.Action = ActionPush
			step.Reason = "branch not yet published to this remote"
		case MissingLocal:
			step.Action = ActionManual
			step.Reason = "local branch does not exist"
			plan.PushAllowed = false
		case LocalAhead:
			step.Action = ActionPush
		case RemoteAhead:
			step.Action = ActionPull
			step.Reason = fmt.Sprintf("remote is %d commits ahead", state.Behind)
			plan.PushAllowed = false
		case Diverged:
			plan.PushAllowed = false
			switch sync.Strategy {
			case config.StrategyFastForward:
				step.Action = ActionManual
				step.Reason = fmt.Sprintf("diverged (%d ahead, %d behind); fast-forward impossible", state.Ahead, state.Behind)
			case config.StrategyMerge:
				step.Action = ActionMerge
				step.Reason = advisePrimary(primary)
			case config.StrategyRebase:
				step.Action = ActionRebase
				step.Reason = advisePrimary(primary)
			case config.StrategyForce:
				step.Action = ActionForcePush
				step.Reason = "force strategy overwrites the remote; requires --force"
			default:
				step.Action = ActionManual
			}
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}

func advisePrimary(primary string) string {
	if primary == "" {
		return "resolve against the highest-priority remote before pushing"
	}
	return fmt.Sprintf("resolve against %s before pushing", primary)
}

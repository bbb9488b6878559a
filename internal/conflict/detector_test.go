package conflict

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/gitengine"
)

func commitFile(t *testing.T, repo *git.Repository, dir, name, content, msg string) plumbing.Hash {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: &object.Signature{
		Name: "Test", Email: "test@example.com", When: time.Now(),
	}})
	require.NoError(t, err)
	return hash
}

// setTracking points refs/remotes/<remote>/master at hash, simulating a
// completed fetch.
func setTracking(t *testing.T, repo *git.Repository, remote string, hash plumbing.Hash) {
	t.Helper()
	name := plumbing.NewRemoteReferenceName(remote, "master")
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(name, hash)))
}

func setup(t *testing.T) (*git.Repository, string, *gitengine.Engine, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	first := commitFile(t, repo, dir, "README.md", "hi\n", "initial")
	engine, err := gitengine.Open(dir)
	require.NoError(t, err)
	return repo, dir, engine, first
}

func TestClassifyTotalAndExclusive(t *testing.T) {
	cases := []struct {
		ahead, behind int
		want          Classification
	}{
		{0, 0, InSync},
		{3, 0, LocalAhead},
		{0, 2, RemoteAhead},
		{2, 3, Diverged},
		{1, 1, Diverged},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.ahead, tc.behind))
	}
}

func TestDetectInSyncAndAhead(t *testing.T) {
	repo, dir, engine, first := setup(t)
	setTracking(t, repo, "github", first)

	second := commitFile(t, repo, dir, "a.txt", "a\n", "second")
	setTracking(t, repo, "gitlab", second)

	report, err := Detect(engine, "master", []string{"github", "gitlab"})
	require.NoError(t, err)
	require.Len(t, report.States, 2)

	// github still at first commit: local is one ahead
	assert.Equal(t, LocalAhead, report.States[0].Classification)
	assert.Equal(t, 1, report.States[0].Ahead)
	assert.Equal(t, 0, report.States[0].Behind)
	assert.True(t, report.States[0].PushSafe())

	// gitlab at tip: in sync
	assert.Equal(t, InSync, report.States[1].Classification)
	assert.True(t, report.States[1].PushSafe())
	assert.False(t, report.HasDivergence())
}

func TestDetectDiverged(t *testing.T) {
	repo, dir, engine, base := setup(t)

	// Remote side: three commits on a separate branch from base.
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{
		Hash:   base,
		Branch: plumbing.NewBranchReferenceName("remote-side"),
		Create: true,
	}))
	commitFile(t, repo, dir, "r1.txt", "r\n", "remote 1")
	commitFile(t, repo, dir, "r2.txt", "r\n", "remote 2")
	remoteTip := commitFile(t, repo, dir, "r3.txt", "r\n", "remote 3")

	// Local side: two commits on master.
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName("master")}))
	commitFile(t, repo, dir, "l1.txt", "l\n", "local 1")
	commitFile(t, repo, dir, "l2.txt", "l\n", "local 2")

	setTracking(t, repo, "github", remoteTip)

	report, err := Detect(engine, "master", []string{"github"})
	require.NoError(t, err)
	state := report.States[0]

	assert.Equal(t, Diverged, state.Classification)
	assert.Equal(t, 2, state.Ahead)
	assert.Equal(t, 3, state.Behind)
	assert.False(t, state.PushSafe())
	assert.True(t, report.HasDivergence())
}

func TestDetectMissingRemote(t *testing.T) {
	_, _, engine, _ := setup(t)

	report, err := Detect(engine, "master", []string{"github"})
	require.NoError(t, err)
	assert.Equal(t, MissingRemote, report.States[0].Classification)
	assert.True(t, report.States[0].PushSafe())
}

func TestDetectMissingLocal(t *testing.T) {
	repo, _, engine, first := setup(t)
	setTracking(t, repo, "github", first)

	report, err := Detect(engine, "nonexistent", []string{"github"})
	require.NoError(t, err)
	assert.Equal(t, MissingLocal, report.States[0].Classification)
	assert.False(t, report.States[0].PushSafe())
}

func TestDetectOrderMatchesInput(t *testing.T) {
	repo, _, engine, first := setup(t)
	for _, name := range []string{"gitea", "github", "codeberg"} {
		setTracking(t, repo, name, first)
	}

	report, err := Detect(engine, "master", []string{"gitea", "github", "codeberg"})
	require.NoError(t, err)
	require.Len(t, report.States, 3)
	assert.Equal(t, "gitea", report.States[0].Remote)
	assert.Equal(t, "github", report.States[1].Remote)
	assert.Equal(t, "codeberg", report.States[2].Remote)
}

func TestBuildPlanFastForward(t *testing.T) {
	report := &Report{Branch: "main", States: []BranchState{
		{Remote: "github", Classification: LocalAhead, Ahead: 1},
		{Remote: "gitlab", Classification: Diverged, Ahead: 2, Behind: 3},
	}}

	plan := BuildPlan(report, config.SyncConfig{Strategy: config.StrategyFastForward}, "")
	assert.False(t, plan.PushAllowed)
	assert.Equal(t, ActionPush, plan.Steps[0].Action)
	assert.Equal(t, ActionManual, plan.Steps[1].Action)
}

func TestBuildPlanFastForwardAllClear(t *testing.T) {
	report := &Report{Branch: "main", States: []BranchState{
		{Remote: "github", Classification: InSync},
		{Remote: "gitlab", Classification: LocalAhead, Ahead: 1},
		{Remote: "codeberg", Classification: MissingRemote},
	}}

	plan := BuildPlan(report, config.SyncConfig{Strategy: config.StrategyFastForward}, "")
	assert.True(t, plan.PushAllowed)
	assert.Equal(t, ActionNone, plan.Steps[0].Action)
	assert.Equal(t, ActionPush, plan.Steps[1].Action)
	assert.Equal(t, ActionPush, plan.Steps[2].Action)
}

func TestBuildPlanMergeAdvisesPrimary(t *testing.T) {
	report := &Report{Branch: "main", States: []BranchState{
		{Remote: "gitlab", Classification: Diverged, Ahead: 1, Behind: 1},
	}}

	plan := BuildPlan(report, config.SyncConfig{
		Strategy:      config.StrategyMerge,
		PrimarySource: "github",
	}, "gitea")
	assert.False(t, plan.PushAllowed)
	assert.Equal(t, ActionMerge, plan.Steps[0].Action)
	assert.Contains(t, plan.Steps[0].Reason, "github")
}

func TestBuildPlanMergeFallsBackToFirstPriority(t *testing.T) {
	report := &Report{Branch: "main", States: []BranchState{
		{Remote: "gitlab", Classification: Diverged, Ahead: 1, Behind: 1},
	}}

	plan := BuildPlan(report, config.SyncConfig{Strategy: config.StrategyRebase}, "github")
	assert.Equal(t, ActionRebase, plan.Steps[0].Action)
	assert.Contains(t, plan.Steps[0].Reason, "github")
}

func TestBuildPlanForce(t *testing.T) {
	report := &Report{Branch: "main", States: []BranchState{
		{Remote: "gitlab", Classification: Diverged, Ahead: 1, Behind: 1},
	}}

	plan := BuildPlan(report, config.SyncConfig{Strategy: config.StrategyForce}, "")
	assert.Equal(t, ActionForcePush, plan.Steps[0].Action)
	// Even force strategy blocks the non-forcing path; --force is required.
	assert.False(t, plan.PushAllowed)
}

func TestBuildPlanRemoteAhead(t *testing.T) {
	report := &Report{Branch: "main", States: []BranchState{
		{Remote: "github", Classification: RemoteAhead, Behind: 4},
	}}

	plan := BuildPlan(report, config.SyncConfig{Strategy: config.StrategyFastForward}, "")
	assert.False(t, plan.PushAllowed)
	assert.Equal(t, ActionPull, plan.Steps[0].Action)
}

package gitengine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSignature() *object.Signature {
	return &object.Signature{
		Name:  "Test",
		Email: "test@example.com",
		When:  time.Now(),
	}
}

// commitFile writes content and commits it, returning the commit hash.
func commitFile(t *testing.T, repo *git.Repository, dir, name, content, msg string) plumbing.Hash {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: testSignature()})
	require.NoError(t, err)
	return hash
}

// initRepo creates a working repository with one commit.
func initRepo(t *testing.T) (*git.Repository, string, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	hash := commitFile(t, repo, dir, "README.md", "hello\n", "initial commit")
	return repo, dir, hash
}

func TestOpenNotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, ErrNotARepository)
}

func TestOpenAndCurrentBranch(t *testing.T) {
	_, dir, _ := initRepo(t)

	e, err := Open(dir)
	require.NoError(t, err)

	branch, err := e.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestCurrentBranchDetachedHead(t *testing.T) {
	repo, dir, hash := initRepo(t)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Hash: hash}))

	e, err := Open(dir)
	require.NoError(t, err)
	_, err = e.CurrentBranch()
	assert.ErrorIs(t, err, ErrDetachedHead)
}

func TestWorkingDirClean(t *testing.T) {
	_, dir, _ := initRepo(t)
	e, err := Open(dir)
	require.NoError(t, err)

	clean, err := e.WorkingDirClean()
	require.NoError(t, err)
	assert.True(t, clean)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0o644))
	clean, err = e.WorkingDirClean()
	require.NoError(t, err)
	assert.False(t, clean)
}

func TestRemoteLifecycle(t *testing.T) {
	_, dir, _ := initRepo(t)
	e, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, e.AddRemote("github", "https://github.com/alice/repo.git"))
	require.NoError(t, e.AddRemote("gitlab", "https://gitlab.com/alice/repo.git"))

	remotes, err := e.ListRemotes()
	require.NoError(t, err)
	require.Len(t, remotes, 2)

	byName := map[string]string{}
	for _, r := range remotes {
		byName[r.Name] = r.URL
	}
	assert.Equal(t, "https://github.com/alice/repo.git", byName["github"])

	require.NoError(t, e.RemoveRemote("gitlab"))
	remotes, err = e.ListRemotes()
	require.NoError(t, err)
	assert.Len(t, remotes, 1)
}

func TestPushAndFetchLocalRemote(t *testing.T) {
	repoA, dirA, first := initRepo(t)

	bareDir := t.TempDir()
	_, err := git.PlainInit(bareDir, true)
	require.NoError(t, err)

	engineA, err := Open(dirA)
	require.NoError(t, err)
	require.NoError(t, engineA.AddRemote("origin", bareDir))

	// First push publishes master.
	_, err = engineA.Push(context.Background(), "origin", "master", Credential{}, false)
	require.NoError(t, err)

	// Clone B from the bare remote.
	dirB := t.TempDir()
	_, err = git.PlainClone(dirB, false, &git.CloneOptions{URL: bareDir})
	require.NoError(t, err)
	engineB, err := Open(dirB)
	require.NoError(t, err)

	// Advance A and push again.
	second := commitFile(t, repoA, dirA, "more.txt", "more\n", "second commit")
	require.NotEqual(t, first, second)
	_, err = engineA.Push(context.Background(), "origin", "master", Credential{}, false)
	require.NoError(t, err)

	// B's fetch observes exactly one updated tracking ref.
	outcome, err := engineB.Fetch(context.Background(), "origin", Credential{})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.UpdatedRefs)

	tip, err := engineB.RemoteTrackingTip("origin", "master")
	require.NoError(t, err)
	assert.Equal(t, second, tip)

	// A second fetch with nothing new updates nothing.
	outcome, err = engineB.Fetch(context.Background(), "origin", Credential{})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.UpdatedRefs)
}

func TestPushNonFastForward(t *testing.T) {
	_, dirA, _ := initRepo(t)

	bareDir := t.TempDir()
	_, err := git.PlainInit(bareDir, true)
	require.NoError(t, err)

	engineA, err := Open(dirA)
	require.NoError(t, err)
	require.NoError(t, engineA.AddRemote("origin", bareDir))
	_, err = engineA.Push(context.Background(), "origin", "master", Credential{}, false)
	require.NoError(t, err)

	// An unrelated repository pushing the same branch diverges.
	_, dirB, _ := initRepo(t)
	engineB, err := Open(dirB)
	require.NoError(t, err)
	require.NoError(t, engineB.AddRemote("origin", bareDir))

	_, err = engineB.Push(context.Background(), "origin", "master", Credential{}, false)
	require.Error(t, err)
	assert.Equal(t, KindNonFastForward, KindOf(err))

	// Force push is accepted.
	_, err = engineB.Push(context.Background(), "origin", "master", Credential{}, true)
	require.NoError(t, err)
}

func TestBranchTipMissing(t *testing.T) {
	_, dir, _ := initRepo(t)
	e, err := Open(dir)
	require.NoError(t, err)

	tip, err := e.BranchTip("does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, plumbing.ZeroHash, tip)
}

func TestGraphAheadBehindLinear(t *testing.T) {
	repo, dir, first := initRepo(t)
	commitFile(t, repo, dir, "a.txt", "a\n", "commit 2")
	third := commitFile(t, repo, dir, "b.txt", "b\n", "commit 3")

	e, err := Open(dir)
	require.NoError(t, err)

	ahead, behind, err := e.GraphAheadBehind(third, first)
	require.NoError(t, err)
	assert.Equal(t, 2, ahead)
	assert.Equal(t, 0, behind)

	ahead, behind, err = e.GraphAheadBehind(first, third)
	require.NoError(t, err)
	assert.Equal(t, 0, ahead)
	assert.Equal(t, 2, behind)

	ahead, behind, err = e.GraphAheadBehind(third, third)
	require.NoError(t, err)
	assert.Zero(t, ahead)
	assert.Zero(t, behind)
}

func TestGraphAheadBehindDiverged(t *testing.T) {
	repo, dir, base := initRepo(t)

	// Two commits on master past base.
	commitFile(t, repo, dir, "a.txt", "a\n", "master 1")
	masterTip := commitFile(t, repo, dir, "b.txt", "b\n", "master 2")

	// Branch from base with three commits.
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{
		Hash:   base,
		Branch: plumbing.NewBranchReferenceName("other"),
		Create: true,
	}))
	commitFile(t, repo, dir, "c.txt", "c\n", "other 1")
	commitFile(t, repo, dir, "d.txt", "d\n", "other 2")
	otherTip := commitFile(t, repo, dir, "e.txt", "e\n", "other 3")

	e, err := Open(dir)
	require.NoError(t, err)

	ahead, behind, err := e.GraphAheadBehind(masterTip, otherTip)
	require.NoError(t, err)
	assert.Equal(t, 2, ahead)
	assert.Equal(t, 3, behind)
}

func TestProgressSinkTimeout(t *testing.T) {
	canceled := false
	sink := &progressSink{
		start:   time.Now().Add(-10 * time.Second),
		timeout: 5 * time.Second,
		cancel:  func() { canceled = true },
	}

	_, err := sink.Write([]byte("tick"))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, canceled)
	assert.True(t, sink.TimedOut())
}

func TestProgressSinkPassesWhileWithinBudget(t *testing.T) {
	sink := &progressSink{
		start:   time.Now(),
		timeout: time.Minute,
		cancel:  func() {},
	}
	n, err := sink.Write([]byte("tick"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.False(t, sink.TimedOut())
}

func TestKindClassification(t *testing.T) {
	assert.Equal(t, KindTimeout, classify(ErrTimeout))
	assert.Equal(t, KindTimeout, classify(context.DeadlineExceeded))
	assert.Equal(t, KindNonFastForward, classify(errors.New("non-fast-forward update: refs/heads/main")))
	assert.Equal(t, KindNetwork, classify(errors.New("dial tcp: connection refused")))
	assert.Equal(t, KindOther, classify(errors.New("something else")))

	assert.True(t, KindNetwork.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.False(t, KindAuth.Retryable())
	assert.False(t, KindNonFastForward.Retryable())
}

func TestSetTimeout(t *testing.T) {
	_, dir, _ := initRepo(t)
	e, err := Open(dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeout, e.timeout)
	e.SetTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, e.timeout)
	e.SetTimeout(0)
	assert.Equal(t, 5*time.Second, e.timeout)
}

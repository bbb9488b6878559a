// Package gitengine is a typed wrapper over go-git exposing the fetch,
// push, and inspection operations multigit needs, with credential
// injection and wall-time enforcement on network transfers.
package gitengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/multigit-dev/multigit/pkg/logger"
)

// DefaultTimeout bounds network operations when the caller does not
// override it.
const DefaultTimeout = 5 * time.Minute

// Credential carries transport authentication material for one remote.
// A zero Credential defers to the ambient SSH agent for SSH URLs and
// sends no auth for HTTPS.
type Credential struct {
	Username string
	Token    string
}

// RemoteInfo is one configured git remote.
type RemoteInfo struct {
	Name string
	URL  string
}

// FetchOutcome reports a completed fetch.
type FetchOutcome struct {
	// UpdatedRefs counts remote-tracking references created or moved by
	// the transfer, not a commit delta against HEAD.
	UpdatedRefs int
	Duration    time.Duration
}

// PushOutcome reports a completed push.
type PushOutcome struct {
	Duration time.Duration
}

// Engine owns one opened repository handle. Handles are scoped to a
// single task and must not be shared across goroutines; open one per
// operation.
type Engine struct {
	repo    *git.Repository
	path    string
	timeout time.Duration
}

// Open opens the repository at path, searching upward for .git.
func Open(path string) (*Engine, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotARepository, path)
		}
		return nil, opError("open", "", err)
	}
	return &Engine{repo: repo, path: path, timeout: DefaultTimeout}, nil
}

// Init creates a new repository at path.
func Init(path string) (*Engine, error) {
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, opError("init", "", err)
	}
	return &Engine{repo: repo, path: path, timeout: DefaultTimeout}, nil
}

// SetTimeout overrides the network operation timeout.
func (e *Engine) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// CurrentBranch returns the checked-out branch name, or ErrDetachedHead.
func (e *Engine) CurrentBranch() (string, error) {
	head, err := e.repo.Head()
	if err != nil {
		return "", opError("head", "", err)
	}
	if !head.Name().IsBranch() {
		return "", ErrDetachedHead
	}
	return head.Name().Short(), nil
}

// WorkingDirClean reports whether the worktree has no staged or
// unstaged changes.
func (e *Engine) WorkingDirClean() (bool, error) {
	wt, err := e.repo.Worktree()
	if err != nil {
		return false, opError("worktree", "", err)
	}
	st, err := wt.Status()
	if err != nil {
		return false, opError("status", "", err)
	}
	return st.IsClean(), nil
}

// ListRemotes returns the configured remotes with their first URL.
func (e *Engine) ListRemotes() ([]RemoteInfo, error) {
	remotes, err := e.repo.Remotes()
	if err != nil {
		return nil, opError("remotes", "", err)
	}
	infos := make([]RemoteInfo, 0, len(remotes))
	for _, r := range remotes {
		cfg := r.Config()
		url := ""
		if len(cfg.URLs) > 0 {
			url = cfg.URLs[0]
		}
		infos = append(infos, RemoteInfo{Name: cfg.Name, URL: url})
	}
	return infos, nil
}

// AddRemote registers a new remote.
func (e *Engine) AddRemote(name, url string) error {
	_, err := e.repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: name,
		URLs: []string{url},
	})
	if err != nil {
		return opError("remote-add", name, err)
	}
	return nil
}

// RemoveRemote deletes a remote and its tracking references.
func (e *Engine) RemoveRemote(name string) error {
	if err := e.repo.DeleteRemote(name); err != nil {
		return opError("remote-remove", name, err)
	}
	return nil
}

// BranchTip resolves the local branch head, or plumbing.ZeroHash when
// the branch does not exist.
func (e *Engine) BranchTip(branch string) (plumbing.Hash, error) {
	ref, err := e.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, opError("resolve", "", err)
	}
	return ref.Hash(), nil
}

// RemoteTrackingTip resolves refs/remotes/<remote>/<branch>, or
// plumbing.ZeroHash when the tracking reference does not exist.
func (e *Engine) RemoteTrackingTip(remote, branch string) (plumbing.Hash, error) {
	name := plumbing.NewRemoteReferenceName(remote, branch)
	ref, err := e.repo.Reference(name, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, opError("resolve", remote, err)
	}
	return ref.Hash(), nil
}

// Fetch updates remote-tracking references from the named remote and
// reports how many of them changed.
func (e *Engine) Fetch(ctx context.Context, remoteName string, cred Credential) (FetchOutcome, error) {
	start := time.Now()

	remote, err := e.repo.Remote(remoteName)
	if err != nil {
		return FetchOutcome{}, opError("fetch", remoteName, err)
	}
	auth, err := e.authFor(remote, cred)
	if err != nil {
		return FetchOutcome{}, opError("fetch", remoteName, err)
	}

	before, err := e.trackingSnapshot(remoteName)
	if err != nil {
		return FetchOutcome{}, opError("fetch", remoteName, err)
	}

	opCtx, cancel, progress := e.watchdog(ctx)
	defer cancel()

	err = e.repo.FetchContext(opCtx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       auth,
		Progress:   progress,
		Tags:       git.AllTags,
	})
	duration := time.Since(start)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return FetchOutcome{Duration: duration}, opError("fetch", remoteName, resolveCause(opCtx, progress, err))
	}

	after, serr := e.trackingSnapshot(remoteName)
	if serr != nil {
		return FetchOutcome{Duration: duration}, opError("fetch", remoteName, serr)
	}

	updated := 0
	for name, hash := range after {
		if prev, ok := before[name]; !ok || prev != hash {
			updated++
		}
	}

	logger.Debug("Fetch complete",
		logger.String("remote", remoteName),
		logger.Int("updated_refs", updated),
		logger.Duration("duration", duration))
	return FetchOutcome{UpdatedRefs: updated, Duration: duration}, nil
}

// Push sends the branch to the named remote. force prefixes the refspec
// so the remote accepts a non-fast-forward update.
func (e *Engine) Push(ctx context.Context, remoteName, branch string, cred Credential, force bool) (PushOutcome, error) {
	start := time.Now()

	remote, err := e.repo.Remote(remoteName)
	if err != nil {
		return PushOutcome{}, opError("push", remoteName, err)
	}
	auth, err := e.authFor(remote, cred)
	if err != nil {
		return PushOutcome{}, opError("push", remoteName, err)
	}

	spec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	if force {
		spec = "+" + spec
	}

	opCtx, cancel, progress := e.watchdog(ctx)
	defer cancel()

	err = e.repo.PushContext(opCtx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(spec)},
		Auth:       auth,
		Progress:   progress,
	})
	duration := time.Since(start)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return PushOutcome{Duration: duration}, opError("push", remoteName, resolveCause(opCtx, progress, err))
	}

	logger.Debug("Push complete",
		logger.String("remote", remoteName),
		logger.String("branch", branch),
		logger.Duration("duration", duration))
	return PushOutcome{Duration: duration}, nil
}

// Pull fast-forwards the current branch from the named remote. The
// merge itself is delegated to the git library; non-fast-forward pulls
// fail with a Conflict-classified error.
func (e *Engine) Pull(ctx context.Context, remoteName, branch string, cred Credential) error {
	remote, err := e.repo.Remote(remoteName)
	if err != nil {
		return opError("pull", remoteName, err)
	}
	auth, err := e.authFor(remote, cred)
	if err != nil {
		return opError("pull", remoteName, err)
	}

	wt, err := e.repo.Worktree()
	if err != nil {
		return opError("pull", remoteName, err)
	}

	opCtx, cancel, progress := e.watchdog(ctx)
	defer cancel()

	err = wt.PullContext(opCtx, &git.PullOptions{
		RemoteName:    remoteName,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		Auth:          auth,
		Progress:      progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		if errors.Is(err, git.ErrNonFastForwardUpdate) {
			return &OpError{Op: "pull", Remote: remoteName, Kind: KindConflict, Wrapped: err}
		}
		return opError("pull", remoteName, resolveCause(opCtx, progress, err))
	}
	return nil
}

// trackingSnapshot maps remote-tracking reference names to hashes for
// one remote.
func (e *Engine) trackingSnapshot(remoteName string) (map[string]plumbing.Hash, error) {
	refs, err := e.repo.References()
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("refs/remotes/%s/", remoteName)
	snapshot := make(map[string]plumbing.Hash)
	ferr := refs.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(ref.Name().String(), prefix) {
			snapshot[ref.Name().String()] = ref.Hash()
		}
		return nil
	})
	if ferr != nil {
		return nil, ferr
	}
	return snapshot, nil
}

// authFor selects the transport auth method for the remote's URL.
func (e *Engine) authFor(remote *git.Remote, cred Credential) (transport.AuthMethod, error) {
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return nil, fmt.Errorf("remote %s has no URL", remote.Config().Name)
	}
	url := urls[0]

	if strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://") {
		// Defer to the ambient SSH agent.
		auth, err := gitssh.NewSSHAgentAuth("git")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", transport.ErrAuthenticationRequired, err)
		}
		return auth, nil
	}

	if cred.Token == "" {
		return nil, nil
	}
	username := cred.Username
	if username == "" {
		username = "git"
	}
	return &githttp.BasicAuth{Username: username, Password: cred.Token}, nil
}

// resolveCause prefers the watchdog's timeout verdict over whatever
// transport error the abort provoked.
func resolveCause(ctx context.Context, sink *progressSink, err error) error {
	if sink.TimedOut() {
		return ErrTimeout
	}
	if cause := context.Cause(ctx); cause != nil && errors.Is(cause, ErrTimeout) {
		return ErrTimeout
	}
	return err
}

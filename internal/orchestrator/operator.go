package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/multigit-dev/multigit/internal/provider"
	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/gitengine"
	"github.com/multigit-dev/multigit/pkg/secrets"
)

// GitOperator is the production Operator: each call opens its own
// repository handle (handles are not shareable across tasks), derives
// the credential host, and runs the transfer with the configured
// timeout.
type GitOperator struct {
	RepoPath string
	Cfg      *config.Config
	Secrets  *secrets.Manager
	Timeout  time.Duration
}

// Fetch implements Operator.
func (g *GitOperator) Fetch(ctx context.Context, remote config.Remote) (int, error) {
	engine, cred, err := g.prepare(remote)
	if err != nil {
		return 0, err
	}
	outcome, err := engine.Fetch(ctx, remote.Name, cred)
	if err != nil {
		return 0, err
	}
	return outcome.UpdatedRefs, nil
}

// Push implements Operator.
func (g *GitOperator) Push(ctx context.Context, remote config.Remote, branch string, force bool) error {
	engine, cred, err := g.prepare(remote)
	if err != nil {
		return err
	}
	_, err = engine.Push(ctx, remote.Name, branch, cred, force)
	return err
}

// prepare opens the per-task repository handle and resolves the
// remote's credential. A missing credential fails the task before any
// transport work.
func (g *GitOperator) prepare(remote config.Remote) (*gitengine.Engine, gitengine.Credential, error) {
	engine, err := gitengine.Open(g.RepoPath)
	if err != nil {
		return nil, gitengine.Credential{}, err
	}
	if g.Timeout > 0 {
		engine.SetTimeout(g.Timeout)
	}

	host, err := provider.HostFor(remote.Spec.Provider, remote.Spec.APIURL, g.Cfg.Security.AllowInsecureHTTP)
	if err != nil {
		return nil, gitengine.Credential{}, err
	}

	token, err := g.Secrets.Retrieve(remote.Spec.Provider, host, remote.Spec.Username)
	if err != nil {
		return nil, gitengine.Credential{}, fmt.Errorf("credential lookup for %s (%s@%s): %w",
			remote.Name, remote.Spec.Username, host, err)
	}

	return engine, gitengine.Credential{Username: remote.Spec.Username, Token: token}, nil
}

package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// gitea talks to the Gitea/Forgejo REST API v1. Codeberg shares the
// implementation with a pinned host.
type gitea struct {
	tag      string
	rest     *restClient
	username string
	host     string
}

// newGitea requires api_url: there is no well-known host for
// self-hosted instances.
func newGitea(username, token string, opts Options) (Provider, error) {
	if opts.APIURL == "" {
		return nil, &ProviderError{Tag: TagGitea, Message: "api_url is required for self-hosted providers"}
	}
	u, err := ValidateBaseURL(opts.APIURL, opts.AllowInsecureHTTP)
	if err != nil {
		return nil, err
	}
	return newGiteaLike(TagGitea, u.String()+"/api/v1", u.Hostname(), username, token, opts.Timeout), nil
}

func newCodeberg(username, token string, opts Options) (Provider, error) {
	base := "https://codeberg.org"
	host := HostCodeberg
	if opts.APIURL != "" {
		u, err := ValidateBaseURL(opts.APIURL, opts.AllowInsecureHTTP)
		if err != nil {
			return nil, err
		}
		base = u.String()
		host = u.Hostname()
	}
	return newGiteaLike(TagCodeberg, base+"/api/v1", host, username, token, opts.Timeout), nil
}

func newGiteaLike(tag, base, host, username, token string, timeout time.Duration) Provider {
	rest := newRESTClient(tag, base, timeout,
		rate.NewLimiter(rate.Limit(5), 5),
		func(req *http.Request) {
			if token != "" {
				req.Header.Set("Authorization", "token "+token)
			}
		})
	return &gitea{tag: tag, rest: rest, username: username, host: host}
}

func (g *gitea) Name() string { return g.tag }
func (g *gitea) Host() string { return g.host }

func (g *gitea) TestConnection(ctx context.Context) (ConnectionStatus, error) {
	_, err := g.rest.doJSON(ctx, http.MethodGet, "/user", nil, nil)
	return classifyProbe(err)
}

func (g *gitea) RepoExists(ctx context.Context, owner, name string) (bool, error) {
	_, err := g.rest.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, name), nil, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type giteaRepoResponse struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	CloneURL      string `json:"clone_url"`
	SSHURL        string `json:"ssh_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

func (g *gitea) CreateRepo(ctx context.Context, spec RepoSpec) (*RepoDescriptor, error) {
	body := map[string]interface{}{
		"name":        spec.Name,
		"description": spec.Description,
		"private":     spec.Private,
		"auto_init":   false,
	}
	var repo giteaRepoResponse
	if _, err := g.rest.doJSON(ctx, http.MethodPost, "/user/repos", body, &repo); err != nil {
		return nil, err
	}
	return &RepoDescriptor{
		Name:          repo.Name,
		FullName:      repo.FullName,
		CloneURL:      repo.CloneURL,
		SSHURL:        repo.SSHURL,
		DefaultBranch: repo.DefaultBranch,
		Private:       repo.Private,
	}, nil
}

func (g *gitea) RemoteURL(owner, name string, protocol Protocol) string {
	if protocol == ProtocolSSH {
		return fmt.Sprintf("git@%s:%s/%s.git", g.host, owner, name)
	}
	return fmt.Sprintf("https://%s/%s/%s.git", g.host, owner, name)
}

// RateLimit is unknown for Gitea and Forgejo instances.
func (g *gitea) RateLimit(_ context.Context) (RateLimit, error) {
	return RateLimit{Known: false}, nil
}

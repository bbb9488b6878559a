package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// gitHub talks to the GitHub REST API v3.
type gitHub struct {
	rest     *restClient
	username string
	host     string
}

// GitHub allows 5000 authenticated requests per hour; the bucket stays
// under that with headroom.
func newGitHub(username, token string, opts Options) (Provider, error) {
	base := "https://api.github.com"
	host := HostGitHub
	if opts.APIURL != "" {
		u, err := ValidateBaseURL(opts.APIURL, opts.AllowInsecureHTTP)
		if err != nil {
			return nil, err
		}
		base = u.String()
		host = u.Hostname()
	}

	rest := newRESTClient(TagGitHub, base, opts.Timeout,
		rate.NewLimiter(rate.Limit(1.3), 5),
		func(req *http.Request) {
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			req.Header.Set("Accept", "application/vnd.github.v3+json")
		})

	return &gitHub{rest: rest, username: username, host: host}, nil
}

func (g *gitHub) Name() string { return TagGitHub }
func (g *gitHub) Host() string { return g.host }

func (g *gitHub) TestConnection(ctx context.Context) (ConnectionStatus, error) {
	_, err := g.rest.doJSON(ctx, http.MethodGet, "/user", nil, nil)
	return classifyProbe(err)
}

func (g *gitHub) RepoExists(ctx context.Context, owner, name string) (bool, error) {
	_, err := g.rest.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, name), nil, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type githubRepoResponse struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	CloneURL      string `json:"clone_url"`
	SSHURL        string `json:"ssh_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

func (g *gitHub) CreateRepo(ctx context.Context, spec RepoSpec) (*RepoDescriptor, error) {
	body := map[string]interface{}{
		"name":        spec.Name,
		"description": spec.Description,
		"private":     spec.Private,
		"auto_init":   false,
	}
	var repo githubRepoResponse
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

func (g *gitHub) RemoteURL(owner, name string, protocol Protocol) string {
	if protocol == ProtocolSSH {
		return fmt.Sprintf("git@%s:%s/%s.git", g.host, owner, name)
	}
	return fmt.Sprintf("https://%s/%s/%s.git", g.host, owner, name)
}

type githubRateLimitResponse struct {
	Resources struct {
		Core struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
	} `json:"resources"`
}

func (g *gitHub) RateLimit(ctx context.Context) (RateLimit, error) {
	var rl githubRateLimitResponse
	if _, err := g.rest.doJSON(ctx, http.MethodGet, "/rate_limit", nil, &rl); err != nil {
		return RateLimit{}, err
	}
	return RateLimit{
		Known:     true,
		Limit:     rl.Resources.Core.Limit,
		Remaining: rl.Resources.Core.Remaining,
		ResetAt:   time.Unix(rl.Resources.Core.Reset, 0),
	}, nil
}

package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// gitLab talks to the GitLab REST API v4, SaaS or self-hosted.
type gitLab struct {
	rest     *restClient
	username string
	host     string
}

// GitLab allows 600 requests per minute.
func newGitLab(username, token string, opts Options) (Provider, error) {
	base := "https://gitlab.com/api/v4"
	host := HostGitLab
	if opts.APIURL != "" {
		u, err := ValidateBaseURL(opts.APIURL, opts.AllowInsecureHTTP)
		if err != nil {
			return nil, err
		}
		host = u.Hostname()
		base = u.String() + "/api/v4"
	}

	rest := newRESTClient(TagGitLab, base, opts.Timeout,
		rate.NewLimiter(rate.Limit(10), 10),
		func(req *http.Request) {
			if token != "" {
				req.Header.Set("PRIVATE-TOKEN", token)
			}
		})

	return &gitLab{rest: rest, username: username, host: host}, nil
}

func (g *gitLab) Name() string { return TagGitLab }
func (g *gitLab) Host() string { return g.host }

func (g *gitLab) TestConnection(ctx context.Context) (ConnectionStatus, error) {
	_, err := g.rest.doJSON(ctx, http.MethodGet, "/user", nil, nil)
	return classifyProbe(err)
}

func (g *gitLab) RepoExists(ctx context.Context, owner, name string) (bool, error) {
	project := url.PathEscape(owner + "/" + name)
	_, err := g.rest.doJSON(ctx, http.MethodGet, "/projects/"+project, nil, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type gitlabProjectResponse struct {
	Name          string `json:"name"`
	Path          string `json:"path_with_namespace"`
	HTTPURL       string `json:"http_url_to_repo"`
	SSHURL        string `json:"ssh_url_to_repo"`
	DefaultBranch string `json:"default_branch"`
	Visibility    string `json:"visibility"`
}

func (g *gitLab) CreateRepo(ctx context.Context, spec RepoSpec) (*RepoDescriptor, error) {
	visibility := "public"
	if spec.Private {
		visibility = "private"
	}
	body := map[string]interface{}{
		"name":        spec.Name,
		"description": spec.Description,
		"visibility":  visibility,
	}
	var project gitlabProjectResponse
	if _, err := g.rest.doJSON(ctx, http.MethodPost, "/projects", body, &project); err != nil {
		return nil, err
	}
	return &RepoDescriptor{
		Name:          project.Name,
		FullName:      project.Path,
		CloneURL:      project.HTTPURL,
		SSHURL:        project.SSHURL,
		DefaultBranch: project.DefaultBranch,
		Private:       project.Visibility == "private",
	}, nil
}

func (g *gitLab) RemoteURL(owner, name string, protocol Protocol) string {
	if protocol == ProtocolSSH {
		return fmt.Sprintf("git@%s:%s/%s.git", g.host, owner, name)
	}
	return fmt.Sprintf("https://%s/%s/%s.git", g.host, owner, name)
}

// RateLimit reads GitLab's RateLimit-* headers off a cheap probe; the
// API has no dedicated endpoint.
func (g *gitLab) RateLimit(ctx context.Context) (RateLimit, error) {
	resp, err := g.rest.doJSON(ctx, http.MethodGet, "/user", nil, nil)
	if err != nil {
		return RateLimit{}, err
	}

	rl := RateLimit{}
	if v := resp.Header.Get("RateLimit-Limit"); v != "" {
		if parsed, perr := strconv.Atoi(v); perr == nil {
			rl.Known = true
			rl.Limit = parsed
		}
	}
	if v := resp.Header.Get("RateLimit-Remaining"); v != "" {
		if parsed, perr := strconv.Atoi(v); perr == nil {
			rl.Remaining = parsed
		}
	}
	if v := resp.Header.Get("RateLimit-Reset"); v != "" {
		if unix, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			rl.ResetAt = time.Unix(unix, 0)
		}
	}
	return rl, nil
}

package provider

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// bitbucket talks to the Bitbucket Cloud REST API 2.0 using an app
// password over basic auth.
type bitbucket struct {
	rest     *restClient
	username string
	host     string
}

// Bitbucket allows 1000 requests per hour.
func newBitbucket(username, token string, opts Options) (Provider, error) {
	base := "https://api.bitbucket.org/2.0"
	host := HostBitbucket
	if opts.APIURL != "" {
		u, err := ValidateBaseURL(opts.APIURL, opts.AllowInsecureHTTP)
		if err != nil {
			return nil, err
		}
		base = u.String()
		host = u.Hostname()
	}

	rest := newRESTClient(TagBitbucket, base, opts.Timeout,
		rate.NewLimiter(rate.Limit(0.27), 3),
		func(req *http.Request) {
			if token != "" {
				req.SetBasicAuth(username, token)
			}
		})

	return &bitbucket{rest: rest, username: username, host: host}, nil
}

func (b *bitbucket) Name() string { return TagBitbucket }
func (b *bitbucket) Host() string { return b.host }

func (b *bitbucket) TestConnection(ctx context.Context) (ConnectionStatus, error) {
	_, err := b.rest.doJSON(ctx, http.MethodGet, "/user", nil, nil)
	return classifyProbe(err)
}

func (b *bitbucket) RepoExists(ctx context.Context, owner, name string) (bool, error) {
	_, err := b.rest.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repositories/%s/%s", owner, name), nil, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateRepo is not offered for Bitbucket: repository creation requires
// workspace and project selection the capability interface does not
// carry.
func (b *bitbucket) CreateRepo(_ context.Context, _ RepoSpec) (*RepoDescriptor, error) {
	return nil, ErrUnsupported
}

func (b *bitbucket) RemoteURL(owner, name string, protocol Protocol) string {
	if protocol == ProtocolSSH {
		return fmt.Sprintf("git@%s:%s/%s.git", b.host, owner, name)
	}
	return fmt.Sprintf("https://%s/%s/%s.git", b.host, owner, name)
}

// RateLimit is unknown for Bitbucket; the API exposes no limit surface.
func (b *bitbucket) RateLimit(_ context.Context) (RateLimit, error) {
	return RateLimit{Known: false}, nil
}

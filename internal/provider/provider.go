// Package provider gives each hosting platform (GitHub, GitLab,
// Bitbucket, Codeberg, Gitea) a uniform capability object: connection
// probing, repository existence and creation, URL derivation, and rate
// limit inspection.
package provider

import (
	"context"
	"time"
)

// Provider tags accepted in configuration.
const (
	TagGitHub    = "github"
	TagGitLab    = "gitlab"
	TagBitbucket = "bitbucket"
	TagCodeberg  = "codeberg"
	TagGitea     = "gitea"
)

// Default hosts for the SaaS providers.
const (
	HostGitHub    = "github.com"
	HostGitLab    = "gitlab.com"
	HostBitbucket = "bitbucket.org"
	HostCodeberg  = "codeberg.org"
)

// Protocol selects the transport scheme of a derived remote URL.
type Protocol string

const (
	ProtocolHTTPS Protocol = "https"
	ProtocolSSH   Protocol = "ssh"
)

// ConnectionStatus is the outcome of a connection probe.
type ConnectionStatus string

const (
	StatusOK          ConnectionStatus = "ok"
	StatusAuthFailed  ConnectionStatus = "auth-failed"
	StatusNetwork     ConnectionStatus = "network-error"
	StatusRateLimited ConnectionStatus = "rate-limited"
)

// RepoSpec describes a repository to create.
type RepoSpec struct {
	Name        string
	Description string
	Private     bool
}

// RepoDescriptor describes a repository as reported by the provider.
type RepoDescriptor struct {
	Name          string
	FullName      string
	CloneURL      string
	SSHURL        string
	DefaultBranch string
	Private       bool
}

// RateLimit is a best-effort rate limit snapshot. Known is false for
// providers that do not expose their limits.
type RateLimit struct {
	Known     bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Provider is the uniform capability set of one hosting platform.
type Provider interface {
	// Name returns the provider tag.
	Name() string
	// Host returns the host credentials for this provider are bound to.
	Host() string
	// TestConnection probes authenticated API access.
	TestConnection(ctx context.Context) (ConnectionStatus, error)
	// RepoExists reports whether owner/name exists.
	RepoExists(ctx context.Context, owner, name string) (bool, error)
	// CreateRepo creates a repository, or returns ErrUnsupported.
	CreateRepo(ctx context.Context, spec RepoSpec) (*RepoDescriptor, error)
	// RemoteURL derives the git remote URL for owner/name.
	RemoteURL(owner, name string, protocol Protocol) string
	// RateLimit probes the current limit; best effort.
	RateLimit(ctx context.Context) (RateLimit, error)
}

// Options configures provider construction.
type Options struct {
	// APIURL overrides the provider API base; required for gitea and
	// honored for self-hosted gitlab.
	APIURL string
	// AllowInsecureHTTP permits http:// custom URLs. HTTPS validation
	// runs here even when the URL was validated at setup time.
	AllowInsecureHTTP bool
	// Timeout bounds each REST call.
	Timeout time.Duration
}

// New constructs the capability object for tag. Unknown tags fail with
// ProviderError; custom URLs are HTTPS-validated.
func New(tag, username, token string, opts Options) (Provider, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	switch tag {
	case TagGitHub:
		return newGitHub(username, token, opts)
	case TagGitLab:
		return newGitLab(username, token, opts)
	case TagBitbucket:
		return newBitbucket(username, token, opts)
	case TagCodeberg:
		return newCodeberg(username, token, opts)
	case TagGitea:
		return newGitea(username, token, opts)
	default:
		return nil, &ProviderError{Tag: tag, Message: "unknown provider"}
	}
}

// DefaultHost returns the well-known host for a SaaS provider tag, or
// empty for providers that require an api_url.
func DefaultHost(tag string) string {
	switch tag {
	case TagGitHub:
		return HostGitHub
	case TagGitLab:
		return HostGitLab
	case TagBitbucket:
		return HostBitbucket
	case TagCodeberg:
		return HostCodeberg
	default:
		return ""
	}
}

// HostFor derives the credential-binding host for a configured remote:
// the SaaS constant, or the host of the validated custom api_url.
func HostFor(tag, apiURL string, allowInsecure bool) (string, error) {
	if apiURL != "" {
		u, err := ValidateBaseURL(apiURL, allowInsecure)
		if err != nil {
			return "", err
		}
		return u.Hostname(), nil
	}
	if host := DefaultHost(tag); host != "" {
		return host, nil
	}
	return "", &ProviderError{Tag: tag, Message: "api_url is required for self-hosted providers"}
}

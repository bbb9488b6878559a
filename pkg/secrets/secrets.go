// Package secrets stores host-bound provider credentials behind a
// pluggable backend: the OS keyring, an encrypted file, or (opt-in)
// environment variables.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/multigit-dev/multigit/pkg/audit"
	"github.com/multigit-dev/multigit/pkg/logger"
)

// Backend is one credential storage mechanism. Keys are host-bound:
// a credential is addressed by (provider, host, username).
type Backend interface {
	Store(provider, host, username, secret string) error
	Retrieve(provider, host, username string) (string, error)
	Delete(provider, host, username string) error
	ListProviders() ([]string, error)
}

// key is the host-bound storage key.
func key(provider, host, username string) string {
	return fmt.Sprintf("%s:%s:%s:token", provider, host, username)
}

// legacyKey is the pre-host-binding key format, kept for migration.
func legacyKey(provider, username string) string {
	return fmt.Sprintf("%s:%s:token", provider, username)
}

// EnvVar returns the environment variable consulted for provider when
// environment lookup is enabled.
func EnvVar(provider string) string {
	return "MULTIGIT_" + strings.ToUpper(provider) + "_TOKEN"
}

// Options configures a Manager.
type Options struct {
	// AllowEnv enables MULTIGIT_<PROVIDER>_TOKEN lookup ahead of the
	// backend. Off by default.
	AllowEnv bool
	// Audit receives credential events when non-nil.
	Audit *audit.Logger
}

// Manager wraps a Backend with environment lookup and audit logging.
type Manager struct {
	backend  Backend
	allowEnv bool
	audit    *audit.Logger
}

// NewManager creates a credential manager over backend.
func NewManager(backend Backend, opts Options) *Manager {
	return &Manager{
		backend:  backend,
		allowEnv: opts.AllowEnv,
		audit:    opts.Audit,
	}
}

// Store persists a credential under its host-bound key.
func (m *Manager) Store(provider, host, username, secret string) error {
	err := m.backend.Store(provider, host, username, secret)
	m.audit.Record(audit.EventCredentialStore, subject(provider, host, username), err == nil)
	return err
}

// Retrieve looks up a credential. When environment lookup is enabled the
// MULTIGIT_<PROVIDER>_TOKEN variable wins over the backend; its use is
// warned in the log (never the value).
func (m *Manager) Retrieve(provider, host, username string) (string, error) {
	if m.allowEnv {
		if token, ok := os.LookupEnv(EnvVar(provider)); ok && token != "" {
			logger.Warn("Using token from environment variable",
				logger.String("var", EnvVar(provider)),
				logger.String("provider", provider),
				logger.String("host", host))
			m.audit.Record(audit.EventCredentialRetrieve, subject(provider, host, username)+":env", true)
			return token, nil
		}
	}

	secret, err := m.backend.Retrieve(provider, host, username)
	m.audit.Record(audit.EventCredentialRetrieve, subject(provider, host, username), err == nil)
	return secret, err
}

// Delete removes a credential, including any legacy-keyed entry.
func (m *Manager) Delete(provider, host, username string) error {
	err := m.backend.Delete(provider, host, username)
	m.audit.Record(audit.EventCredentialDelete, subject(provider, host, username), err == nil)
	return err
}

// ListProviders returns the providers with at least one stored
// credential.
func (m *Manager) ListProviders() ([]string, error) {
	return m.backend.ListProviders()
}

func subject(provider, host, username string) string {
	return fmt.Sprintf("%s:%s:%s", provider, host, username)
}

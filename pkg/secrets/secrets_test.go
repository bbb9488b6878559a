package secrets

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/multigit-dev/multigit/pkg/audit"
)

func newKeyringBackend(t *testing.T) *KeyringBackend {
	t.Helper()
	gokeyring.MockInit()
	return NewKeyringBackend()
}

func TestKeyringStoreRetrieveRoundTrip(t *testing.T) {
	b := newKeyringBackend(t)

	require.NoError(t, b.Store("github", "github.com", "alice", "ghp_secret"))

	got, err := b.Retrieve("github", "github.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", got)
}

func TestKeyringHostBinding(t *testing.T) {
	b := newKeyringBackend(t)

	require.NoError(t, b.Store("gitea", "gitea.internal", "alice", "token-a"))

	// Different host or provider must not resolve.
	_, err := b.Retrieve("gitea", "gitea.example.org", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = b.Retrieve("gitlab", "gitea.internal", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeyringLegacyMigration(t *testing.T) {
	b := newKeyringBackend(t)

	// Seed a legacy host-less entry directly.
	require.NoError(t, gokeyring.Set(serviceName, "github:alice:token", "legacy-secret"))

	got, err := b.Retrieve("github", "github.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", got)

	// Migration is migrate-and-delete: the host-bound key now exists and
	// the legacy key is gone.
	migrated, err := gokeyring.Get(serviceName, "github:github.com:alice:token")
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", migrated)

	_, err = gokeyring.Get(serviceName, "github:alice:token")
	assert.ErrorIs(t, err, gokeyring.ErrNotFound)

	// A second retrieve hits the host-bound key; migration ran once.
	again, err := b.Retrieve("github", "github.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", again)
}

func TestKeyringDeleteRemovesBothKeys(t *testing.T) {
	b := newKeyringBackend(t)

	require.NoError(t, gokeyring.Set(serviceName, "gitlab:alice:token", "old"))
	require.NoError(t, b.Store("gitlab", "gitlab.com", "alice", "new"))

	require.NoError(t, b.Delete("gitlab", "gitlab.com", "alice"))

	_, err := gokeyring.Get(serviceName, "gitlab:gitlab.com:alice:token")
	assert.ErrorIs(t, err, gokeyring.ErrNotFound)
	_, err = gokeyring.Get(serviceName, "gitlab:alice:token")
	assert.ErrorIs(t, err, gokeyring.ErrNotFound)
}

func TestKeyringDeleteMissing(t *testing.T) {
	b := newKeyringBackend(t)
	assert.ErrorIs(t, b.Delete("github", "github.com", "nobody"), ErrNotFound)
}

func TestKeyringListProviders(t *testing.T) {
	b := newKeyringBackend(t)

	require.NoError(t, b.Store("github", "github.com", "alice", "a"))
	require.NoError(t, b.Store("gitlab", "gitlab.com", "alice", "b"))
	require.NoError(t, b.Store("github", "github.com", "bob", "c"))

	providers, err := b.ListProviders()
	require.NoError(t, err)
	assert.Equal(t, []string{"github", "gitlab"}, providers)
}

func TestManagerEnvLookupDisabledByDefault(t *testing.T) {
	b := newKeyringBackend(t)
	t.Setenv("MULTIGIT_GITHUB_TOKEN", "env-token")

	m := NewManager(b, Options{})
	_, err := m.Retrieve("github", "github.com", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerEnvLookupOptIn(t *testing.T) {
	b := newKeyringBackend(t)
	t.Setenv("MULTIGIT_GITHUB_TOKEN", "env-token")

	m := NewManager(b, Options{AllowEnv: true})
	got, err := m.Retrieve("github", "github.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "env-token", got)
}

func TestManagerAuditTrail(t *testing.T) {
	b := newKeyringBackend(t)
	log := audit.New(filepath.Join(t.TempDir(), "audit.log"))
	m := NewManager(b, Options{Audit: log})

	require.NoError(t, m.Store("github", "github.com", "alice", "s3cret"))
	_, err := m.Retrieve("github", "github.com", "alice")
	require.NoError(t, err)
	require.NoError(t, m.Delete("github", "github.com", "alice"))

	entries, err := log.Read()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, audit.EventCredentialStore, entries[0].Event)
	assert.Equal(t, audit.EventCredentialRetrieve, entries[1].Event)
	assert.Equal(t, audit.EventCredentialDelete, entries[2].Event)
	for _, e := range entries {
		assert.NotContains(t, e.Subject, "s3cret")
	}
}

func TestEnvVarName(t *testing.T) {
	assert.Equal(t, "MULTIGIT_GITHUB_TOKEN", EnvVar("github"))
	assert.Equal(t, "MULTIGIT_GITEA_TOKEN", EnvVar("gitea"))
}

func TestKeyFormats(t *testing.T) {
	assert.Equal(t, "github:github.com:alice:token", key("github", "github.com", "alice"))
	assert.Equal(t, "github:alice:token", legacyKey("github", "alice"))
}

func TestManyCredentialsByteForByte(t *testing.T) {
	b := newKeyringBackend(t)

	for i := 0; i < 20; i++ {
		secret := fmt.Sprintf("secret-%d-\x00\xffbytes", i)
		user := fmt.Sprintf("user%d", i)
		require.NoError(t, b.Store("codeberg", "codeberg.org", user, secret))
		got, err := b.Retrieve("codeberg", "codeberg.org", user)
		require.NoError(t, err)
		assert.Equal(t, secret, got)
	}
}

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileBackend(t *testing.T, passphrase string) *FileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.enc")
	return NewFileBackend(path, NewPassphrase([]byte(passphrase)))
}

func TestFileBackendRoundTrip(t *testing.T) {
	b := newFileBackend(t, "correct horse battery staple")

	require.NoError(t, b.Store("github", "github.com", "alice", "ghp_filesecret"))

	got, err := b.Retrieve("github", "github.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "ghp_filesecret", got)
}

func TestFileBackendCiphertextOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	b := NewFileBackend(path, NewPassphrase([]byte("passphrase-1")))

	require.NoError(t, b.Store("gitlab", "gitlab.com", "alice", "glpat-plaintextsecret123"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "glpat-plaintextsecret123")
	assert.NotContains(t, string(raw), "alice")
}

func TestFileBackendWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	b := NewFileBackend(path, NewPassphrase([]byte("right")))
	require.NoError(t, b.Store("github", "github.com", "alice", "x"))

	wrong := NewFileBackend(path, NewPassphrase([]byte("wrong")))
	_, err := wrong.Retrieve("github", "github.com", "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestFileBackendCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	require.NoError(t, os.WriteFile(path, []byte("not an encrypted store"), 0o600))

	b := NewFileBackend(path, NewPassphrase([]byte("pw")))
	_, err := b.Retrieve("github", "github.com", "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileBackendLegacyMigration(t *testing.T) {
	b := newFileBackend(t, "pw")

	// Seed a legacy entry through the store layer.
	store := map[string]string{"github:alice:token": "legacy"}
	require.NoError(t, b.save(store))

	got, err := b.Retrieve("github", "github.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "legacy", got)

	// migrate-and-delete
	after, err := b.load()
	require.NoError(t, err)
	assert.Equal(t, "legacy", after["github:github.com:alice:token"])
	_, hasLegacy := after["github:alice:token"]
	assert.False(t, hasLegacy)
}

func TestFileBackendDelete(t *testing.T) {
	b := newFileBackend(t, "pw")
	require.NoError(t, b.Store("gitea", "git.internal", "alice", "tok"))

	require.NoError(t, b.Delete("gitea", "git.internal", "alice"))
	_, err := b.Retrieve("gitea", "git.internal", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, b.Delete("gitea", "git.internal", "alice"), ErrNotFound)
}

func TestFileBackendListProviders(t *testing.T) {
	b := newFileBackend(t, "pw")
	require.NoError(t, b.Store("github", "github.com", "alice", "a"))
	require.NoError(t, b.Store("bitbucket", "bitbucket.org", "alice", "b"))

	providers, err := b.ListProviders()
	require.NoError(t, err)
	assert.Equal(t, []string{"bitbucket", "github"}, providers)
}

func TestFileBackendMissingFileIsEmpty(t *testing.T) {
	b := newFileBackend(t, "pw")
	providers, err := b.ListProviders()
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestPassphraseDestroyZeroes(t *testing.T) {
	raw := []byte("sensitive")
	p := NewPassphrase(raw)
	p.Destroy()

	for _, c := range raw {
		assert.Zero(t, c)
	}
	assert.Nil(t, p.Bytes())
}

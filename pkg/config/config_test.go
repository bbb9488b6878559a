package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{UserFile: filepath.Join(t.TempDir(), "missing.toml")})
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Settings.DefaultBranch)
	assert.Equal(t, 4, cfg.Settings.MaxParallel)
	assert.True(t, cfg.Settings.ParallelPush)
	assert.Equal(t, StrategyFastForward, cfg.Sync.Strategy)
	assert.Equal(t, BackendKeyring, cfg.Security.AuthBackend)
	assert.False(t, cfg.Security.AllowEnvTokens)
	assert.False(t, cfg.Security.AllowInsecureHTTP)
	assert.Equal(t, "15m", cfg.Daemon.Interval)
}

func TestLoadEmptyFileYieldsDefaults(t *testing.T) {
	userFile := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, userFile, "")

	cfg, err := Load(LoadOptions{UserFile: userFile})
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Settings.DefaultBranch)
}

func TestLoadMergePrecedence(t *testing.T) {
	dir := t.TempDir()
	userFile := filepath.Join(dir, "user", "config.toml")
	repoRoot := filepath.Join(dir, "repo")

	writeFile(t, userFile, `
[settings]
default_branch = "develop"
max_parallel = 8
`)
	writeFile(t, filepath.Join(repoRoot, ".multigit", "config.toml"), `
[settings]
default_branch = "trunk"
`)

	cfg, err := Load(LoadOptions{
		UserFile: userFile,
		RepoRoot: repoRoot,
		Overrides: map[string]interface{}{
			"settings.max_parallel": 2,
		},
	})
	require.NoError(t, err)

	// repo file overrides user file; CLI overrides both
	assert.Equal(t, "trunk", cfg.Settings.DefaultBranch)
	assert.Equal(t, 2, cfg.Settings.MaxParallel)
}

func TestLoadIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	userFile := filepath.Join(dir, "config.toml")
	writeFile(t, userFile, `
[settings]
max_parallel = 3

[remotes.github]
provider = "github"
username = "alice"
enabled = true
`)

	first, err := Load(LoadOptions{UserFile: userFile})
	require.NoError(t, err)
	second, err := Load(LoadOptions{UserFile: userFile})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadMalformedTOML(t *testing.T) {
	userFile := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, userFile, "settings = not toml [")

	_, err := Load(LoadOptions{UserFile: userFile})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadRejectsBadStrategy(t *testing.T) {
	userFile := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, userFile, `
[sync]
strategy = "yolo"
`)

	_, err := Load(LoadOptions{UserFile: userFile})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadRejectsZeroParallel(t *testing.T) {
	userFile := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, userFile, `
[settings]
max_parallel = 0
`)

	_, err := Load(LoadOptions{UserFile: userFile})
	require.Error(t, err)
}

func TestEnabledRemotesOrdering(t *testing.T) {
	cfg := &Config{Remotes: map[string]RemoteSpec{
		"gitlab":   {Provider: "gitlab", Username: "alice", Enabled: true, Priority: 2},
		"github":   {Provider: "github", Username: "alice", Enabled: true, Priority: 1},
		"codeberg": {Provider: "codeberg", Username: "alice", Enabled: true, Priority: 2},
		"gitea":    {Provider: "gitea", Username: "alice", Enabled: false, Priority: 0},
	}}

	remotes := cfg.EnabledRemotes()
	require.Len(t, remotes, 3)
	assert.Equal(t, "github", remotes[0].Name)
	// same priority: name order breaks the tie
	assert.Equal(t, "codeberg", remotes[1].Name)
	assert.Equal(t, "gitlab", remotes[2].Name)
}

func TestBranchIncluded(t *testing.T) {
	cfg := &Config{Sync: SyncConfig{
		IncludeBranches: []string{"main", "release/**"},
		ExcludeBranches: []string{"release/experimental/**"},
	}}

	assert.True(t, cfg.BranchIncluded("main"))
	assert.True(t, cfg.BranchIncluded("release/v1/hotfix"))
	assert.False(t, cfg.BranchIncluded("feature/thing"))
	assert.False(t, cfg.BranchIncluded("release/experimental/x"))

	// empty include list means all branches
	open := &Config{}
	assert.True(t, open.BranchIncluded("anything"))
}

func TestSaveRepoRoundTrip(t *testing.T) {
	repoRoot := t.TempDir()
	cfg, err := Load(LoadOptions{UserFile: filepath.Join(repoRoot, "none.toml")})
	require.NoError(t, err)
	cfg.Remotes = map[string]RemoteSpec{
		"github": {Provider: "github", Username: "alice", Enabled: true},
	}

	require.NoError(t, SaveRepo(cfg, repoRoot))

	loaded, err := Load(LoadOptions{
		UserFile: filepath.Join(repoRoot, "none.toml"),
		RepoRoot: repoRoot,
	})
	require.NoError(t, err)
	require.Contains(t, loaded.Remotes, "github")
	assert.Equal(t, "alice", loaded.Remotes["github"].Username)
	assert.True(t, loaded.Remotes["github"].Enabled)
}

func TestSaveUserExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(LoadOptions{UserFile: path})
	require.NoError(t, err)
	cfg.Settings.DefaultBranch = "develop"

	require.NoError(t, SaveUser(cfg, path))

	loaded, err := Load(LoadOptions{UserFile: path})
	require.NoError(t, err)
	assert.Equal(t, "develop", loaded.Settings.DefaultBranch)
}

/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigit-dev/multigit/internal/orchestrator"
	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/exitcode"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "multigit ")
	assert.Contains(t, out.String(), Version)
}

func TestAggregateExitCodeSuccess(t *testing.T) {
	agg := &orchestrator.Aggregate{
		Succeeded: 2,
		Results:   []orchestrator.Result{{Success: true}, {Success: true}},
	}
	assert.Equal(t, exitcode.Success, aggregateExitCode(agg))
}

func TestAggregateExitCodeNetworkBeatsConflict(t *testing.T) {
	agg := &orchestrator.Aggregate{
		Failed: 2,
		Results: []orchestrator.Result{
			{Success: false, ErrorKind: orchestrator.KindNonFastForward},
			{Success: false, ErrorKind: orchestrator.KindTimeout},
		},
	}
	assert.Equal(t, exitcode.NetworkError, aggregateExitCode(agg))
}

func TestAggregateExitCodeConflict(t *testing.T) {
	agg := &orchestrator.Aggregate{
		Failed: 1,
		Results: []orchestrator.Result{
			{Success: true},
			{Success: false, ErrorKind: orchestrator.KindNonFastForward},
		},
	}
	// One failure is enough for a non-zero code.
	agg.Succeeded = 1
	assert.Equal(t, exitcode.ConflictError, aggregateExitCode(agg))
}

func TestAggregateExitCodeGeneric(t *testing.T) {
	agg := &orchestrator.Aggregate{
		Failed:  1,
		Results: []orchestrator.Result{{Success: false, ErrorKind: orchestrator.KindInternal}},
	}
	assert.Equal(t, exitcode.GeneralError, aggregateExitCode(agg))
}

func TestSelectRemotes(t *testing.T) {
	all := []configRemote{
		{Name: "github"},
		{Name: "gitlab"},
	}

	selected, err := selectRemotes(all, nil)
	require.NoError(t, err)
	assert.Len(t, selected, 2)

	selected, err = selectRemotes(all, []string{"gitlab"})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "gitlab", selected[0].Name)

	_, err = selectRemotes(all, []string{"codeberg"})
	assert.Error(t, err)
}

func TestPullSourcePrecedence(t *testing.T) {
	cfg := &config.Config{
		Sync: config.SyncConfig{PrimarySource: "gitlab"},
		Remotes: map[string]config.RemoteSpec{
			"github": {Provider: "github", Username: "a", Enabled: true, Priority: 1},
			"gitlab": {Provider: "gitlab", Username: "a", Enabled: true, Priority: 2},
		},
	}

	// --from wins
	r, err := pullSource(cfg, "github")
	require.NoError(t, err)
	assert.Equal(t, "github", r.Name)

	// then primary_source
	r, err = pullSource(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "gitlab", r.Name)

	// then first by priority
	cfg.Sync.PrimarySource = ""
	r, err = pullSource(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "github", r.Name)

	_, err = pullSource(cfg, "codeberg")
	assert.Error(t, err)
}

func TestPrintAggregateJSON(t *testing.T) {
	agg := &orchestrator.Aggregate{
		Succeeded: 1,
		Failed:    1,
		Results: []orchestrator.Result{
			{Remote: "github", Provider: "github", Success: true, Duration: 120 * time.Millisecond, Attempts: 1},
			{Remote: "gitlab", Provider: "gitlab", Success: false, ErrorKind: orchestrator.KindAuth, Attempts: 1},
		},
	}

	var out bytes.Buffer
	printAggregate(&out, "push", agg, true)

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3, "one record per remote plus the aggregate record")
	assert.Contains(t, string(lines[0]), `"remote":"github"`)
	assert.Contains(t, string(lines[1]), `"error_kind":"auth"`)
	assert.Contains(t, string(lines[2]), `"type":"aggregate"`)
}

func TestPrintAggregateText(t *testing.T) {
	agg := &orchestrator.Aggregate{
		Succeeded: 1,
		Results: []orchestrator.Result{
			{Remote: "github", Success: true, Message: "pushed main", Duration: time.Second, Attempts: 1},
		},
	}

	var out bytes.Buffer
	printAggregate(&out, "push", agg, false)
	assert.Contains(t, out.String(), "github")
	assert.Contains(t, out.String(), "1 succeeded, 0 failed")
}

func TestDisplayHost(t *testing.T) {
	assert.Equal(t, "github.com", displayHost(config.RemoteSpec{Provider: "github"}))
	assert.Equal(t, "https://git.internal", displayHost(config.RemoteSpec{Provider: "gitea", APIURL: "https://git.internal"}))
}

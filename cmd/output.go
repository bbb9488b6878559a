/*
Copyright © 2025 MultiGit contributors
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/multigit-dev/multigit/internal/orchestrator"
	"github.com/multigit-dev/multigit/pkg/config"
	"github.com/multigit-dev/multigit/pkg/exitcode"
)

type configRemote = config.Remote

// printAggregate renders one line per remote plus a summary. JSON mode
// emits one structured record per remote and a final aggregate record.
func printAggregate(w io.Writer, op string, agg *orchestrator.Aggregate, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, r := range agg.Results {
			_ = enc.Encode(map[string]interface{}{
				"type":        "result",
				"op":          op,
				"remote":      r.Remote,
				"provider":    r.Provider,
				"success":     r.Success,
				"duration_ms": r.Duration.Milliseconds(),
				"message":     r.Message,
				"updates":     r.Updates,
				"error_kind":  string(r.ErrorKind),
				"attempts":    r.Attempts,
			})
		}
		_ = enc.Encode(map[string]interface{}{
			"type":      "aggregate",
			"op":        op,
			"succeeded": agg.Succeeded,
			"failed":    agg.Failed,
		})
		return
	}

	rows := make([][3]string, 0, len(agg.Results))
	for _, r := range agg.Results {
		status := "ok"
		detail := r.Message
		if !r.Success {
			status = "FAILED"
			detail = fmt.Sprintf("[%s] %s", r.ErrorKind, r.Message)
		}
		rows = append(rows, [3]string{r.Remote, status, fmt.Sprintf("%s  %s", formatDuration(r.Duration), detail)})
	}
	printColumns(w, rows)
	fmt.Fprintf(w, "\n%s: %d succeeded, %d failed\n", op, agg.Succeeded, agg.Failed)
}

// printColumns aligns a small table by display width.
func printColumns(w io.Writer, rows [][3]string) {
	widths := [2]int{}
	for _, row := range rows {
		for i := 0; i < 2; i++ {
			if width := runewidth.StringWidth(row[i]); width > widths[i] {
				widths[i] = width
			}
		}
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			runewidth.FillRight(row[0], widths[0]),
			runewidth.FillRight(row[1], widths[1]),
			row[2])
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

// aggregateExitCode maps a failed aggregate onto the stable exit codes:
// transport and credential failures beat divergence, which beats the
// generic failure code.
func aggregateExitCode(agg *orchestrator.Aggregate) int {
	if agg.AllSucceeded() {
		return exitcode.Success
	}

	code := exitcode.GeneralError
	for _, r := range agg.Results {
		switch r.ErrorKind {
		case orchestrator.KindAuth, orchestrator.KindNetwork, orchestrator.KindTimeout, orchestrator.KindRateLimited:
			return exitcode.NetworkError
		case orchestrator.KindNonFastForward, orchestrator.KindConflict:
			code = exitcode.ConflictError
		}
	}
	return code
}

// selectRemotes returns the enabled remotes, narrowed to names when the
// caller passed any.
func selectRemotes(all []configRemote, names []string) ([]configRemote, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]configRemote, len(all))
	for _, r := range all {
		byName[r.Name] = r
	}
	selected := make([]configRemote, 0, len(names))
	for _, name := range names {
		r, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("remote %q is not configured or not enabled", name)
		}
		selected = append(selected, r)
	}
	return selected, nil
}

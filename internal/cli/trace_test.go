package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/ir"
)

func TestTraceRequiresRunOrProject(t *testing.T) {
	_, err := execute(t, NewTraceCommand(testOpts(t, "text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of the flags")
}

func TestTraceRunAndProjectExclusive(t *testing.T) {
	_, err := execute(t, NewTraceCommand(testOpts(t, "text")), "--run", "a", "--project", deskProject)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestTraceRun(t *testing.T) {
	opts := testOpts(t, "text")
	recordRun(t, opts, "run-a", 5)

	out, err := execute(t, NewTraceCommand(opts), "--run", "run-a")
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-a")
	assert.Contains(t, out, "project: desk")
	assert.Contains(t, out, "Timeline:")
	assert.Contains(t, out, "light set_toggle")
	assert.Contains(t, out, "Stats: 5 frame(s), 6 firing(s)")
	assert.Contains(t, out, "count: 5")
	assert.Contains(t, out, "light: 1")
}

func TestTraceRunJSON(t *testing.T) {
	opts := testOpts(t, "json")
	recordRun(t, opts, "run-a", 5)

	out, err := execute(t, NewTraceCommand(opts), "--run", "run-a")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-a", resp.Data.Run.ID)
	assert.Len(t, resp.Data.Timeline, 5)
	assert.Equal(t, map[string]int{"count": 5, "light": 1}, resp.Data.Stats.ByRule)
}

func TestTraceRuleFilter(t *testing.T) {
	opts := testOpts(t, "json")
	recordRun(t, opts, "run-a", 5)

	out, err := execute(t, NewTraceCommand(opts), "--run", "run-a", "--rule", "light")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Timeline, 1)
	assert.Equal(t, 6, resp.Data.Stats.Firings, "stats cover the whole run")
}

func TestTraceUnknownRun(t *testing.T) {
	opts := testOpts(t, "text")
	recordRun(t, opts, "run-a", 1)

	out, err := execute(t, NewTraceCommand(opts), "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUnknownRun)
}

func TestTraceListsRunsOfProject(t *testing.T) {
	opts := testOpts(t, "text")
	recordRun(t, opts, "run-b", 1)
	recordRun(t, opts, "run-a", 1)

	out, err := execute(t, NewTraceCommand(opts), "--project", deskProject)
	require.NoError(t, err)
	assert.Contains(t, out, "Runs of desk")
	assert.Less(t, strings.Index(out, "run-a"), strings.Index(out, "run-b"))
}

func TestTraceNoRunsOfProject(t *testing.T) {
	out, err := execute(t, NewTraceCommand(testOpts(t, "text")), "--project", deskProject)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded for desk")
}

func TestBuildTrace(t *testing.T) {
	run := ir.RunRecord{ID: "r"}
	frames := []ir.FrameRecord{
		{RunID: "r", Seq: 1, Hash: "a"},
		{RunID: "r", Seq: 2, Hash: "b"},
		{RunID: "r", Seq: 3, Hash: "c"},
	}
	firings := []ir.RuleFiring{
		{RunID: "r", Frame: 1, Ordinal: 0, RuleID: "tick"},
		{RunID: "r", Frame: 3, Ordinal: 0, RuleID: "tick"},
		{RunID: "r", Frame: 3, Ordinal: 1, RuleID: "beat"},
	}

	tests := []struct {
		name string
		rule string
		seqs []int64
	}{
		{"all", "", []int64{1, 2, 3}},
		{"tick", "tick", []int64{1, 3}},
		{"beat", "beat", []int64{3}},
		{"none", "other", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := buildTrace(run, frames, firings, tt.rule)
			var seqs []int64
			for _, fr := range res.Timeline {
				seqs = append(seqs, fr.Seq)
			}
			assert.Equal(t, tt.seqs, seqs)
			assert.Equal(t, 3, res.Stats.Frames)
			assert.Equal(t, 3, res.Stats.Firings)
			assert.Equal(t, map[string]int{"tick": 2, "beat": 1}, res.Stats.ByRule)
		})
	}

	res := buildTrace(run, frames, firings, "")
	require.Len(t, res.Timeline[2].Fired, 2)
	assert.Equal(t, "beat", res.Timeline[2].Fired[1].RuleID)
	assert.Empty(t, res.Timeline[1].Fired)
}

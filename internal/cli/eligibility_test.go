package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/behavior/builtin"
	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/store"
	"github.com/roach88/ledcore/internal/targets"
)

const (
	uno     = "arduino_uno_fastled_msgeq7"
	esp32   = "esp32_fastled_msgeq7"
	esp8266 = "esp8266_fastled_noneaudio"
)

func eligibilityJSON(t *testing.T, opts *RootOptions, args ...string) EligibilityMatrix {
	t.Helper()
	opts.Format = "json"
	out, err := execute(t, NewEligibilityCommand(opts), args...)
	require.NoError(t, err)

	var resp struct {
		Data EligibilityMatrix `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.Data
}

// writeSnapshot records the current builtin matrix as release, with edit
// applied to each result first.
func writeSnapshot(t *testing.T, dbPath, release string, edit func(*ir.EligibilityResult)) {
	t.Helper()
	treg, err := targets.Builtin()
	require.NoError(t, err)
	results := export.NewGate(builtin.NewRegistry(), treg).Matrix(nil, nil)
	for i := range results {
		if edit != nil {
			edit(&results[i])
		}
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.WriteEligibilitySnapshot(context.Background(), release, results))
}

func TestEligibilityText(t *testing.T) {
	out, err := execute(t, NewEligibilityCommand(testOpts(t, "text")),
		"--behavior", "pulse,solid", "--target", uno+","+esp32)
	require.NoError(t, err)
	assert.Contains(t, out, "memory (tiny < small)")
	assert.Contains(t, out, "3 exportable, 0 preview-only, 1 blocked")
}

func TestEligibilityJSON(t *testing.T) {
	m := eligibilityJSON(t, testOpts(t, "json"), "--behavior", "pulse,sparkle", "--target", esp8266)
	require.Len(t, m.Results, 2)

	byBehavior := map[string]ir.EligibilityResult{}
	for _, r := range m.Results {
		byBehavior[r.BehaviorID] = r
	}
	assert.Equal(t, ir.StatusBlocked, byBehavior["pulse"].Status)
	assert.Contains(t, byBehavior["pulse"].Reason, "audio")
	assert.Equal(t, ir.StatusPreviewOnly, byBehavior["sparkle"].Status)
	assert.Equal(t, map[string]int{"BLOCKED": 1, "PREVIEW_ONLY": 1}, m.Counts)
}

func TestEligibilityFullMatrix(t *testing.T) {
	m := eligibilityJSON(t, testOpts(t, "json"))
	treg, err := targets.Builtin()
	require.NoError(t, err)
	assert.Len(t, m.Results, len(builtin.NewRegistry().IDs())*len(treg.IDs()))
}

func TestEligibilityIncludesTargetPacks(t *testing.T) {
	opts := testOpts(t, "json")
	opts.cfg.Export.TargetPacks = "testdata/packs"
	m := eligibilityJSON(t, opts, "--behavior", "solid", "--target", "bench_q8")
	require.Len(t, m.Results, 1)
	assert.Equal(t, ir.StatusExportable, m.Results[0].Status)
}

func TestEligibilityRecordsRelease(t *testing.T) {
	opts := testOpts(t, "text")
	out, err := execute(t, NewEligibilityCommand(opts), "--release", "v1")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded as release v1")

	out, err = execute(t, NewDiffCommand(opts), "v1")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ No eligibility changes")
}

func TestDiffTwoReleases(t *testing.T) {
	opts := testOpts(t, "json")
	writeSnapshot(t, opts.cfg.DB.Path, "v1", nil)
	writeSnapshot(t, opts.cfg.DB.Path, "v2", func(r *ir.EligibilityResult) {
		if r.BehaviorID == "solid" && r.TargetID == uno {
			r.Status = ir.StatusPreviewOnly
			r.Reason = "demoted"
		}
	})

	out, err := execute(t, NewDiffCommand(opts), "v1", "v2")
	require.NoError(t, err)

	var resp struct {
		Status string                 `json:"status"`
		Data   export.EligibilityDiff `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Changes, 1)
	c := resp.Data.Changes[0]
	assert.Equal(t, "solid", c.BehaviorID)
	assert.Equal(t, ir.StatusExportable, c.From)
	assert.Equal(t, ir.StatusPreviewOnly, c.To)
	assert.Empty(t, resp.Data.Regressions)
}

func TestDiffDetectsRegression(t *testing.T) {
	opts := testOpts(t, "text")
	writeSnapshot(t, opts.cfg.DB.Path, "v0", func(r *ir.EligibilityResult) {
		if r.BehaviorID == "pulse" && r.TargetID == uno {
			r.Status = ir.StatusExportable
			r.Reason = ""
		}
	})

	out, err := execute(t, NewDiffCommand(opts), "v0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeRegression)
	assert.Contains(t, out, "! pulse@"+uno+": EXPORTABLE -> BLOCKED")
	assert.Contains(t, out, "✗ 1 regression(s)")
}

func TestDiffChangedTargetIsNotRegression(t *testing.T) {
	opts := testOpts(t, "text")
	writeSnapshot(t, opts.cfg.DB.Path, "v0", func(r *ir.EligibilityResult) {
		if r.BehaviorID == "pulse" && r.TargetID == uno {
			r.Status = ir.StatusExportable
			r.TargetFingerprint = "older-pack"
		}
	})

	out, err := execute(t, NewDiffCommand(opts), "v0")
	require.NoError(t, err)
	assert.Contains(t, out, "  pulse@"+uno+": EXPORTABLE -> BLOCKED")
}

func TestDiffUnknownRelease(t *testing.T) {
	opts := testOpts(t, "text")
	writeSnapshot(t, opts.cfg.DB.Path, "v1.0", nil)

	_, err := execute(t, NewDiffCommand(opts), "v1.1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `release "v1.1" was never recorded`)
	assert.Contains(t, err.Error(), `did you mean "v1.0"?`)
}

func TestDiffArgs(t *testing.T) {
	_, err := execute(t, NewDiffCommand(testOpts(t, "text")))
	require.Error(t, err)
	_, err = execute(t, NewDiffCommand(testOpts(t, "text")), "a", "b", "c")
	require.Error(t, err)
}

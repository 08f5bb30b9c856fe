package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
)

func TestCreateRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", "sha256:aaa")
	run.Seed = 1 << 63 // survives the int64 column
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)
}

func TestCreateRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestRun("run-1", "sha256:aaa")
	require.NoError(t, s.CreateRun(ctx, first))

	second := first
	second.Project = "other"
	require.NoError(t, s.CreateRun(ctx, second))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "test-project", got.Project, "first write wins")
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteFrame_OrderedAndIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, createTestRun("run-1", "sha256:aaa")))

	frames := createTestFrames("run-1", 3, 0)
	// Insert out of order; reads come back by seq.
	for _, i := range []int{2, 0, 1, 0} {
		require.NoError(t, s.WriteFrame(ctx, frames[i]))
	}

	got, err := s.ReadFrameHashes(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, frames, got)
}

func TestWriteFrame_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteFrame(context.Background(), ir.FrameRecord{RunID: "ghost", Seq: 1, Hash: "h"})
	assert.Error(t, err)
}

func TestReadFrameHashes_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ReadFrameHashes(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestWriteFirings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, createTestRun("run-1", "sha256:aaa")))

	tick2 := []ir.RuleFiring{
		{RunID: "run-1", Frame: 2, Ordinal: 0, RuleID: "drift", Action: ir.ActionSetVar, Subject: "hue", Value: 0.25},
		{RunID: "run-1", Frame: 2, Ordinal: 1, RuleID: "speed", Action: ir.ActionSetParam, Subject: "chase.speed", Value: 3},
	}
	tick1 := []ir.RuleFiring{
		{RunID: "run-1", Frame: 1, Ordinal: 0, RuleID: "loud", Action: ir.ActionSetToggle, Subject: "loud", Value: 1},
	}
	require.NoError(t, s.WriteFirings(ctx, tick2))
	require.NoError(t, s.WriteFirings(ctx, tick1))
	require.NoError(t, s.WriteFirings(ctx, tick2)) // replayed tick
	require.NoError(t, s.WriteFirings(ctx, nil))

	got, err := s.ReadFirings(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	order := make([]string, len(got))
	for i, f := range got {
		assert.NotZero(t, f.ID)
		order[i] = f.RuleID
	}
	assert.Equal(t, []string{"loud", "drift", "speed"}, order)
	assert.Equal(t, ir.ActionSetParam, got[2].Action)
	assert.Equal(t, "chase.speed", got[2].Subject)
	assert.InDelta(t, 3.0, got[2].Value, 0)
}

func TestWriteFirings_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, createTestRun("run-1", "sha256:aaa")))

	batch := []ir.RuleFiring{
		{RunID: "run-1", Frame: 1, Ordinal: 0, RuleID: "a", Action: ir.ActionSetVar, Subject: "hue"},
		{RunID: "ghost", Frame: 1, Ordinal: 1, RuleID: "b", Action: ir.ActionSetVar, Subject: "hue"},
	}
	require.Error(t, s.WriteFirings(ctx, batch))

	got, err := s.ReadFirings(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func eligibilityRows() []ir.EligibilityResult {
	return []ir.EligibilityResult{
		{BehaviorID: "solid", TargetID: "uno", Status: ir.StatusExportable, BehaviorFingerprint: "b1", TargetFingerprint: "t1"},
		{BehaviorID: "plasma", TargetID: "uno", Status: ir.StatusBlocked, Reason: "requires matrix layout", BehaviorFingerprint: "b2", TargetFingerprint: "t1"},
		{BehaviorID: "plasma", TargetID: "esp32", Status: ir.StatusExportable, BehaviorFingerprint: "b2", TargetFingerprint: "t2"},
	}
}

func TestEligibilitySnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteEligibilitySnapshot(ctx, "v0.3.0", eligibilityRows()))

	got, err := s.ReadEligibilitySnapshot(ctx, "v0.3.0")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "plasma", got[0].BehaviorID)
	assert.Equal(t, "esp32", got[0].TargetID)
	assert.Equal(t, "uno", got[1].TargetID)
	assert.Equal(t, ir.StatusBlocked, got[1].Status)
	assert.Equal(t, "requires matrix layout", got[1].Reason)
	assert.Equal(t, "solid", got[2].BehaviorID)
}

func TestEligibilitySnapshot_FirstRecordingKept(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteEligibilitySnapshot(ctx, "v1", eligibilityRows()))

	changed := eligibilityRows()
	changed[0].Status = ir.StatusBlocked
	require.NoError(t, s.WriteEligibilitySnapshot(ctx, "v1", changed))

	got, err := s.ReadEligibilitySnapshot(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, ir.StatusExportable, got[2].Status)
}

func TestEligibilitySnapshot_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadEligibilitySnapshot(context.Background(), "never")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListReleases(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	got, err := s.ListReleases(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.WriteEligibilitySnapshot(ctx, "v0.3.0", eligibilityRows()))
	require.NoError(t, s.WriteEligibilitySnapshot(ctx, "v0.2.0", eligibilityRows()[:1]))

	got, err = s.ListReleases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v0.2.0", "v0.3.0"}, got)
}

func testReport(target string, ok bool) export.ParityReport {
	return export.ParityReport{
		Project:          "desk",
		TargetID:         target,
		OpSetVersion:     ir.OpSetVersion,
		ToleranceVersion: ir.ToleranceTableVersion,
		OK:               ok,
		Layers: []export.LayerEligibility{{
			LayerID: "base",
			EligibilityResult: ir.EligibilityResult{
				BehaviorID: "solid", TargetID: target, Status: ir.StatusExportable,
				BehaviorFingerprint: "b1", TargetFingerprint: "t1",
			},
		}},
		Encodings: []export.ParamEncoding{{
			Subject: "base.hue", Param: "hue", Encoding: export.EncodingQ8,
			WorstCaseError: 0.00196, Tolerance: 0.004, OK: true,
		}},
		Budget: export.Estimate{Leds: 30, Layers: 1, RAMBytes: 512, CPUClass: "low"},
		Issues: []export.Issue{{Severity: export.SeverityWarning, Subject: "leds", Message: "near limit <&>"}},
	}
}

func TestWriteParityReport_InsertOrSelect(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id1, inserted, err := s.WriteParityReport(ctx, "sha256:aaa", testReport("uno", true))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, id1)

	id2, inserted, err := s.WriteParityReport(ctx, "sha256:aaa", testReport("uno", false))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id1, id2)

	id3, inserted, err := s.WriteParityReport(ctx, "sha256:aaa", testReport("esp32", true))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEqual(t, id1, id3)
}

func TestWriteParityReport_ChangedInputsAreNotShadowed(t *testing.T) {
	tests := []struct {
		name   string
		change func(*export.ParityReport)
	}{
		{"target descriptor", func(r *export.ParityReport) { r.TargetFingerprint = "t2" }},
		{"behavior catalog", func(r *export.ParityReport) { r.Catalog = "c2" }},
		{"op-set version", func(r *export.ParityReport) { r.OpSetVersion = "ledcore/opset/v2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			ctx := context.Background()

			passing := testReport("board", true)
			id1, inserted, err := s.WriteParityReport(ctx, "sha256:aaa", passing)
			require.NoError(t, err)
			require.True(t, inserted)

			failing := testReport("board", false)
			tt.change(&failing)
			id2, inserted, err := s.WriteParityReport(ctx, "sha256:aaa", failing)
			require.NoError(t, err)
			assert.True(t, inserted)
			assert.NotEqual(t, id1, id2)

			got, err := s.ReadParityReports(ctx, "sha256:aaa")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.False(t, got[0].OK, "latest verdict wins")

			history, err := s.ReadParityHistory(ctx, "sha256:aaa", "board")
			require.NoError(t, err)
			assert.Equal(t, []export.ParityReport{passing, failing}, history)
		})
	}
}

func TestWriteParityReport_RecheckBecomesLatest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	full := testReport("board", true)
	full.TargetFingerprint = "t1"
	reduced := testReport("board", false)
	reduced.TargetFingerprint = "t2"

	id1, _, err := s.WriteParityReport(ctx, "sha256:aaa", full)
	require.NoError(t, err)
	_, _, err = s.WriteParityReport(ctx, "sha256:aaa", reduced)
	require.NoError(t, err)

	// The target pack reverts: the original row is reused and wins again.
	id3, inserted, err := s.WriteParityReport(ctx, "sha256:aaa", full)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id1, id3)

	got, err := s.ReadParityReports(ctx, "sha256:aaa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].OK)

	history, err := s.ReadParityHistory(ctx, "sha256:aaa", "board")
	require.NoError(t, err)
	assert.Equal(t, []export.ParityReport{reduced, full}, history)
}

func TestReadParityReports(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	uno := testReport("uno", true)
	esp := testReport("esp32", false)
	for _, rep := range []export.ParityReport{uno, esp} {
		_, _, err := s.WriteParityReport(ctx, "sha256:aaa", rep)
		require.NoError(t, err)
	}
	_, _, err := s.WriteParityReport(ctx, "sha256:bbb", testReport("uno", true))
	require.NoError(t, err)

	got, err := s.ReadParityReports(ctx, "sha256:aaa")
	require.NoError(t, err)
	assert.Equal(t, []export.ParityReport{esp, uno}, got)

	none, err := s.ReadParityReports(ctx, "sha256:zzz")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestFirstDivergence(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []ir.FrameRecord
		diverged bool
		seq      int64
		compared int
	}{
		{"identical", createTestFrames("a", 5, 0), createTestFrames("b", 5, 0), false, 0, 5},
		{"hash differs", createTestFrames("a", 5, 0), createTestFrames("b", 5, 3), true, 3, 2},
		{"b shorter", createTestFrames("a", 5, 0), createTestFrames("b", 3, 0), true, 4, 3},
		{"a shorter", createTestFrames("a", 2, 0), createTestFrames("b", 4, 0), true, 3, 2},
		{"both empty", nil, nil, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			ctx := context.Background()
			require.NoError(t, s.CreateRun(ctx, createTestRun("a", "sha256:aaa")))
			require.NoError(t, s.CreateRun(ctx, createTestRun("b", "sha256:aaa")))
			for _, f := range append(tt.a, tt.b...) {
				require.NoError(t, s.WriteFrame(ctx, f))
			}

			d, err := s.FirstDivergence(ctx, "a", "b")
			require.NoError(t, err)
			assert.Equal(t, tt.diverged, d.Diverged)
			assert.Equal(t, tt.seq, d.Seq)
			assert.Equal(t, tt.compared, d.Compared)
		})
	}
}

func TestFirstDivergence_ReportsHashes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, createTestRun("a", "sha256:aaa")))
	require.NoError(t, s.CreateRun(ctx, createTestRun("b", "sha256:aaa")))
	for _, f := range append(createTestFrames("a", 3, 0), createTestFrames("b", 3, 2)...) {
		require.NoError(t, s.WriteFrame(ctx, f))
	}

	d, err := s.FirstDivergence(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "hb", d.HashA)
	assert.Equal(t, "x", d.HashB)
}

func TestRunsWithProject(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"run-b", "run-a"} {
		require.NoError(t, s.CreateRun(ctx, createTestRun(id, "sha256:aaa")))
	}
	require.NoError(t, s.CreateRun(ctx, createTestRun("run-c", "sha256:bbb")))

	ids, err := s.RunsWithProject(ctx, "sha256:aaa")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, ids)
}

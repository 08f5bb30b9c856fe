package diagnostics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/behavior/builtin"
	"github.com/roach88/ledcore/internal/compositor"
	"github.com/roach88/ledcore/internal/engine"
	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/rules"
	"github.com/roach88/ledcore/internal/signal"
	fixtures "github.com/roach88/ledcore/internal/testutil"
)

func tick(run string, seq int64, fired int, probes ...compositor.Probe) engine.TickResult {
	return engine.TickResult{
		RunID:  run,
		Frame:  &compositor.Frame{Seq: seq, Hash: "sha256:f"},
		Rules:  rules.Result{Frame: seq, Applied: make([]rules.Applied, fired)},
		Report: compositor.Report{Probes: probes},
	}
}

func TestProbes_Observe(t *testing.T) {
	p := NewProbes()
	empty := p.Snapshot()
	assert.Empty(t, empty.RunID)

	p.Observe(tick("run-1", 1, 2,
		compositor.Probe{LayerID: "base", Enabled: true, Nonzero: 30},
		compositor.Probe{LayerID: "chase", Enabled: true, Fault: "boom"}))
	p.Observe(tick("run-1", 2, 1,
		compositor.Probe{LayerID: "base", Enabled: true, Nonzero: 30},
		compositor.Probe{LayerID: "chase", Enabled: false, Fault: "boom"}))

	s := p.Snapshot()
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, int64(2), s.Frame)
	assert.Equal(t, 1, s.Fired)
	assert.Equal(t, int64(3), s.FiredTotal)
	require.Len(t, s.Layers, 2)
	assert.Equal(t, int64(0), s.Layers[0].Faults)
	assert.Equal(t, int64(2), s.Layers[1].Faults)
	assert.False(t, s.Layers[1].Enabled)

	// Earlier snapshots are never modified.
	assert.Empty(t, empty.RunID)
	assert.Nil(t, empty.Layers)
}

func TestProbes_NewRunResetsTotals(t *testing.T) {
	p := NewProbes()
	p.Observe(tick("run-1", 1, 4, compositor.Probe{LayerID: "base", Fault: "x"}))
	p.RecordParity(export.ParityReport{Project: "desk", TargetID: "uno", OK: true})
	p.Observe(tick("run-2", 1, 1, compositor.Probe{LayerID: "base"}))

	s := p.Snapshot()
	assert.Equal(t, int64(1), s.FiredTotal)
	assert.Equal(t, int64(0), s.Layers[0].Faults)
	require.NotNil(t, s.Parity, "export results outlive a run")
}

func TestProbes_Records(t *testing.T) {
	p := NewProbes()
	p.RecordEligibility(ir.EligibilityResult{BehaviorID: "pulse", TargetID: "uno", Status: ir.StatusBlocked})
	p.RecordParity(export.ParityReport{Project: "desk", TargetID: "uno"})

	s := p.Snapshot()
	require.NotNil(t, s.Eligibility)
	assert.Equal(t, ir.StatusBlocked, s.Eligibility.Status)
	require.NotNil(t, s.Parity)
	assert.Equal(t, "uno", s.Parity.TargetID)
}

func TestProbes_ConcurrentReaders(t *testing.T) {
	p := NewProbes()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 500; i++ {
			p.Observe(tick("run-1", i, 1, compositor.Probe{LayerID: "base"}))
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s := p.Snapshot()
				// FiredTotal equals Frame in every consistent snapshot.
				if s.FiredTotal != s.Frame {
					t.Errorf("torn snapshot: frame %d fired_total %d", s.Frame, s.FiredTotal)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestProbes_EngineObserver(t *testing.T) {
	p := NewProbes()
	eng, err := engine.New(fixtures.StripProject(), builtin.NewRegistry(),
		engine.WithRunIDGenerator(fixtures.FixedRunID("run-diag")),
		engine.WithObserver(p.Observe))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := eng.Tick(engine.DefaultDT, signal.Inputs{})
		require.NoError(t, err)
	}

	s := p.Snapshot()
	assert.Equal(t, "run-diag", s.RunID)
	assert.Equal(t, int64(3), s.Frame)
	latest, err := eng.Latest()
	require.NoError(t, err)
	assert.Equal(t, latest.Hash, s.FrameHash)
	assert.Len(t, s.Layers, len(eng.Compositor().Layers()))
}

func TestCollector(t *testing.T) {
	p := NewProbes()
	c := NewCollector(p)
	assert.Equal(t, 0, testutil.CollectAndCount(c))

	p.Observe(tick("run-1", 7, 2,
		compositor.Probe{LayerID: "base", Enabled: true, Nonzero: 30},
		compositor.Probe{LayerID: "chase", Enabled: true, Nonzero: 4}))
	p.RecordEligibility(ir.EligibilityResult{BehaviorID: "pulse", TargetID: "uno", Status: ir.StatusBlocked})
	p.RecordParity(export.ParityReport{
		Project: "desk", TargetID: "uno", OK: false,
		Issues: []export.Issue{
			{Severity: export.SeverityError, Subject: "leds"},
			{Severity: export.SeverityWarning, Subject: "sparkle"},
			{Severity: export.SeverityWarning, Subject: "leds"},
		},
	})

	// 3 run metrics, 3 per layer, 1 eligibility, 3 parity.
	assert.Equal(t, 3+2*3+1+3, testutil.CollectAndCount(c))

	expected := `
# HELP ledcore_frame Last published engine frame.
# TYPE ledcore_frame gauge
ledcore_frame{run="run-1"} 7
# HELP ledcore_layer_nonzero_pixels Nonzero pixels in the layer's last contribution.
# TYPE ledcore_layer_nonzero_pixels gauge
ledcore_layer_nonzero_pixels{layer="base"} 30
ledcore_layer_nonzero_pixels{layer="chase"} 4
# HELP ledcore_parity_issues Issues in the last parity report.
# TYPE ledcore_parity_issues gauge
ledcore_parity_issues{project="desk",severity="error",target="uno"} 1
ledcore_parity_issues{project="desk",severity="warning",target="uno"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"ledcore_frame", "ledcore_layer_nonzero_pixels", "ledcore_parity_issues"))
}

func TestNewRegistry(t *testing.T) {
	p := NewProbes()
	p.Observe(tick("run-1", 1, 0))
	reg := NewRegistry(p)
	n, err := testutil.GatherAndCount(reg, "ledcore_rules_fired_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

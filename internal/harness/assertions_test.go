package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/compositor"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/rules"
	"github.com/roach88/ledcore/internal/store"
)

func applied(ids ...string) []rules.Applied {
	out := make([]rules.Applied, len(ids))
	for i, id := range ids {
		out[i] = rules.Applied{RuleID: id, Kind: ir.ActionAddVar, Subject: "x", Value: float64(i + 1)}
	}
	return out
}

// sampleResult has four ticks: A and B fire at 1, A at 2 and 4.
func sampleResult() *Result {
	r := NewResult()
	r.RunID = "run-1"
	r.Trace = []TickTrace{
		{Seq: 1, Hash: "h1", Fired: applied("A", "B")},
		{Seq: 2, Hash: "h2", Fired: applied("A")},
		{Seq: 3, Hash: "h3"},
		{Seq: 4, Hash: "h4", Fired: applied("A")},
	}
	r.Vars["x"] = 3
	r.Toggles["flag"] = true
	r.Params["base"] = map[string]float64{"brightness": 0.5}
	r.Pixels = []ir.RGB{{R: 0.5}, {G: 1}}
	r.Probes = []compositor.Probe{
		{LayerID: "base", Enabled: true, Nonzero: 2},
		{LayerID: "accent", Enabled: false},
	}
	return r
}

func count(n int) *int { return &n }

func TestEvaluateAssertions_Pass(t *testing.T) {
	as := []Assertion{
		{Type: AssertVar, Name: "x", Value: 3},
		{Type: AssertVar, Name: "x", Value: 3.0004, Tolerance: 0.001},
		{Type: AssertToggle, Name: "flag", Value: true},
		{Type: AssertParam, Layer: "base", Param: "brightness", Value: 0.5},
		{Type: AssertRuleFired, Rule: "A"},
		{Type: AssertRuleFired, Rule: "A", Count: count(3)},
		{Type: AssertRuleFired, Rule: "A", Frames: []int64{1, 2, 4}},
		{Type: AssertRuleFired, Rule: "C", Count: count(0)},
		{Type: AssertFiringOrder, Frame: 1, Rules: []string{"A", "B"}},
		{Type: AssertFiringOrder, Frame: 3},
		{Type: AssertPixel, Index: 1, RGB: []float64{0, 1, 0}},
		{Type: AssertLayerDark, Layer: "accent"},
		{Type: AssertNoFaults},
		{Type: AssertDeterministic},
	}
	actx := &AssertionContext{Replay: &store.Divergence{RunA: "a", RunB: "b", Compared: 4}}
	assert.Empty(t, EvaluateAssertions(sampleResult(), as, actx))
}

func TestEvaluateAssertions_Fail(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      []string
	}{
		{"var mismatch", Assertion{Type: AssertVar, Name: "x", Value: 4}, []string{"var x = 4", "Actual: 3"}},
		{"var undefined", Assertion{Type: AssertVar, Name: "y", Value: 0}, []string{"var not defined"}},
		{"toggle mismatch", Assertion{Type: AssertToggle, Name: "flag", Value: false}, []string{"toggle flag = false", "Actual: true"}},
		{"toggle undefined", Assertion{Type: AssertToggle, Name: "loud", Value: true}, []string{"toggle not defined"}},
		{"param mismatch", Assertion{Type: AssertParam, Layer: "base", Param: "brightness", Value: 1}, []string{"param base.brightness = 1"}},
		{"param undefined", Assertion{Type: AssertParam, Layer: "accent", Param: "hue", Value: 1}, []string{"param not defined"}},
		{"never fired", Assertion{Type: AssertRuleFired, Rule: "C"}, []string{"rule C fired", "never fired"}},
		{"wrong count", Assertion{Type: AssertRuleFired, Rule: "B", Count: count(2)}, []string{"rule B fired 2 times", "fired 1 times at frames [1]"}},
		{"wrong frames", Assertion{Type: AssertRuleFired, Rule: "A", Frames: []int64{1, 2}}, []string{"frames [1 2]", "fired at frames [1 2 4]"}},
		{"wrong order", Assertion{Type: AssertFiringOrder, Frame: 1, Rules: []string{"B", "A"}}, []string{"frame 1 applied [B A]", "Actual: [A B]"}},
		{"frame past end", Assertion{Type: AssertFiringOrder, Frame: 9, Rules: []string{"A"}}, []string{"run ended at frame 4"}},
		{"pixel mismatch", Assertion{Type: AssertPixel, Index: 0, RGB: []float64{1, 0, 0}}, []string{"pixel 0 = [1 0 0]", "Actual: [0.5 0 0]"}},
		{"pixel out of range", Assertion{Type: AssertPixel, Index: 2, RGB: []float64{0, 0, 0}}, []string{"frame has 2 pixels"}},
		{"layer lit", Assertion{Type: AssertLayerDark, Layer: "base"}, []string{"2 nonzero pixels"}},
		{"layer missing", Assertion{Type: AssertLayerDark, Layer: "ghost"}, []string{"layer not composed"}},
		{"unknown type", Assertion{Type: "trace_order"}, []string{`unknown assertion type "trace_order"`}},
		{"deterministic without replay", Assertion{Type: AssertDeterministic}, []string{"requires a replay"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion}, &AssertionContext{})
			require.Len(t, errs, 1)
			for _, w := range tt.want {
				assert.Contains(t, errs[0], w)
			}
		})
	}
}

func TestEvaluateAssertions_Faults(t *testing.T) {
	r := sampleResult()
	r.Trace[2].Faults = []string{`layer "accent": boom`}
	errs := EvaluateAssertions(r, []Assertion{{Type: AssertNoFaults}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `frame 3: layer "accent": boom`)
}

func TestEvaluateAssertions_Diverged(t *testing.T) {
	div := &store.Divergence{RunA: "a", RunB: "b", Seq: 3, HashA: "h3", HashB: "x3", Diverged: true, Compared: 2}
	errs := EvaluateAssertions(sampleResult(), []Assertion{{Type: AssertDeterministic}}, &AssertionContext{Replay: div})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `frame 3 differs after 2 matching frames: "h3" != "x3"`)
}

func TestAssertionError_ListsFirings(t *testing.T) {
	err := assertRuleFired(sampleResult().Trace, Assertion{Rule: "B", Count: count(0)})
	require.Error(t, err)

	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, AssertRuleFired, ae.Type)

	msg := err.Error()
	assert.Contains(t, msg, "Rule firings:")
	assert.Contains(t, msg, "[1] A(add_var x=1) B(add_var x=2)")
	assert.Contains(t, msg, "[4] A(add_var x=1)")
	assert.NotContains(t, msg, "[3]", "ticks without firings are skipped")
}

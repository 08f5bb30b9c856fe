package harness

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/ledcore/internal/rules"
	"github.com/roach88/ledcore/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Trace    []TickTrace // Ticks that fired rules, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nRule firings:\n")
		for _, tick := range e.Trace {
			if len(tick.Fired) == 0 {
				continue
			}
			fmt.Fprintf(&buf, "  [%d]", tick.Seq)
			for _, a := range tick.Fired {
				fmt.Fprintf(&buf, " %s(%s %s=%g)", a.RuleID, a.Kind, a.Subject, a.Value)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext carries what assertions need beyond the result.
type AssertionContext struct {
	Ctx context.Context

	// Replay is the comparison of the run with its replay. Set only when
	// a deterministic assertion is present.
	Replay *store.Divergence
}

func tolerance(a Assertion) float64 {
	if a.Tolerance > 0 {
		return a.Tolerance
	}
	return 1e-9
}

func assertVar(result *Result, a Assertion) error {
	want, _ := number(a.Value)
	got, ok := result.Vars[a.Name]
	if !ok {
		return &AssertionError{
			Type:     AssertVar,
			Expected: fmt.Sprintf("var %s = %g", a.Name, want),
			Actual:   "var not defined",
		}
	}
	if math.Abs(got-want) > tolerance(a) {
		return &AssertionError{
			Type:     AssertVar,
			Expected: fmt.Sprintf("var %s = %g", a.Name, want),
			Actual:   fmt.Sprintf("%g", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertToggle(result *Result, a Assertion) error {
	want := a.Value.(bool)
	got, ok := result.Toggles[a.Name]
	if !ok {
		return &AssertionError{
			Type:     AssertToggle,
			Expected: fmt.Sprintf("toggle %s = %t", a.Name, want),
			Actual:   "toggle not defined",
		}
	}
	if got != want {
		return &AssertionError{
			Type:     AssertToggle,
			Expected: fmt.Sprintf("toggle %s = %t", a.Name, want),
			Actual:   fmt.Sprintf("%t", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertParam(result *Result, a Assertion) error {
	want, _ := number(a.Value)
	got, ok := result.Params[a.Layer][a.Param]
	if !ok {
		return &AssertionError{
			Type:     AssertParam,
			Expected: fmt.Sprintf("param %s.%s = %g", a.Layer, a.Param, want),
			Actual:   "param not defined",
		}
	}
	if math.Abs(got-want) > tolerance(a) {
		return &AssertionError{
			Type:     AssertParam,
			Expected: fmt.Sprintf("param %s.%s = %g", a.Layer, a.Param, want),
			Actual:   fmt.Sprintf("%g", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// firedAt returns the frames in which rule applied at least one action.
func firedAt(trace []TickTrace, rule string) []int64 {
	var frames []int64
	for _, tick := range trace {
		if slices.ContainsFunc(tick.Fired, func(ap rules.Applied) bool { return ap.RuleID == rule }) {
			frames = append(frames, tick.Seq)
		}
	}
	return frames
}

// assertRuleFired checks the frames a rule fired in. With Frames set the
// match is exact; with Count set only the number of frames is checked;
// with neither the rule must fire at least once.
func assertRuleFired(trace []TickTrace, a Assertion) error {
	got := firedAt(trace, a.Rule)

	switch {
	case len(a.Frames) > 0:
		if !slices.Equal(got, a.Frames) {
			return &AssertionError{
				Type:     AssertRuleFired,
				Expected: fmt.Sprintf("rule %s fired at frames %v", a.Rule, a.Frames),
				Actual:   fmt.Sprintf("fired at frames %v", got),
				Trace:    trace,
			}
		}
	case a.Count != nil:
		if len(got) != *a.Count {
			return &AssertionError{
				Type:     AssertRuleFired,
				Expected: fmt.Sprintf("rule %s fired %d times", a.Rule, *a.Count),
				Actual:   fmt.Sprintf("fired %d times at frames %v", len(got), got),
				Trace:    trace,
			}
		}
	default:
		if len(got) == 0 {
			return &AssertionError{
				Type:     AssertRuleFired,
				Expected: fmt.Sprintf("rule %s fired", a.Rule),
				Actual:   "never fired",
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertFiringOrder checks the rules applied at one frame, in order.
// A rule applying several actions appears once per action.
func assertFiringOrder(result *Result, a Assertion) error {
	tick, ok := result.Tick(a.Frame)
	if !ok {
		return &AssertionError{
			Type:     AssertFiringOrder,
			Expected: fmt.Sprintf("frame %d", a.Frame),
			Actual:   fmt.Sprintf("run ended at frame %d", len(result.Trace)),
		}
	}
	got := make([]string, len(tick.Fired))
	for i, ap := range tick.Fired {
		got[i] = ap.RuleID
	}
	want := a.Rules
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertFiringOrder,
			Expected: fmt.Sprintf("frame %d applied %v", a.Frame, want),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertPixel(result *Result, a Assertion) error {
	if a.Index >= len(result.Pixels) {
		return &AssertionError{
			Type:     AssertPixel,
			Expected: fmt.Sprintf("pixel %d", a.Index),
			Actual:   fmt.Sprintf("frame has %d pixels", len(result.Pixels)),
		}
	}
	px := result.Pixels[a.Index]
	got := []float64{px.R, px.G, px.B}
	tol := tolerance(a)
	for i := range got {
		if math.Abs(got[i]-a.RGB[i]) > tol {
			return &AssertionError{
				Type:     AssertPixel,
				Expected: fmt.Sprintf("pixel %d = %v", a.Index, a.RGB),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	}
	return nil
}

func assertLayerDark(result *Result, a Assertion) error {
	for _, p := range result.Probes {
		if p.LayerID != a.Layer {
			continue
		}
		if p.Nonzero != 0 {
			return &AssertionError{
				Type:     AssertLayerDark,
				Expected: fmt.Sprintf("layer %s dark", a.Layer),
				Actual:   fmt.Sprintf("%d nonzero pixels", p.Nonzero),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertLayerDark,
		Expected: fmt.Sprintf("layer %s dark", a.Layer),
		Actual:   "layer not composed",
	}
}

func assertNoFaults(trace []TickTrace) error {
	for _, tick := range trace {
		if len(tick.Faults) > 0 {
			return &AssertionError{
				Type:     AssertNoFaults,
				Expected: "no behavior faults",
				Actual:   fmt.Sprintf("frame %d: %s", tick.Seq, strings.Join(tick.Faults, "; ")),
			}
		}
	}
	return nil
}

func assertDeterministic(div *store.Divergence) error {
	if div.Diverged {
		return &AssertionError{
			Type:     AssertDeterministic,
			Expected: "replay matches the run frame for frame",
			Actual: fmt.Sprintf("frame %d differs after %d matching frames: %q != %q",
				div.Seq, div.Compared, div.HashA, div.HashB),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertVar:
			err = assertVar(result, assertion)
		case AssertToggle:
			err = assertToggle(result, assertion)
		case AssertParam:
			err = assertParam(result, assertion)
		case AssertRuleFired:
			err = assertRuleFired(result.Trace, assertion)
		case AssertFiringOrder:
			err = assertFiringOrder(result, assertion)
		case AssertPixel:
			err = assertPixel(result, assertion)
		case AssertLayerDark:
			err = assertLayerDark(result, assertion)
		case AssertNoFaults:
			err = assertNoFaults(result.Trace)
		case AssertDeterministic:
			if actx == nil || actx.Replay == nil {
				err = fmt.Errorf("assertion[%d]: deterministic requires a replay", i)
			} else {
				err = assertDeterministic(actx.Replay)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

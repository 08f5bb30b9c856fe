package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ledcore/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string      `json:"scenario_name"`
	RunID        string      `json:"run_id"`
	Trace        []TickTrace `json:"trace"`
}

// toIR converts a TraceSnapshot to an IRObject for canonical JSON
// serialization. Floats are written through ir.Float so the bytes do not
// depend on the platform's float formatting.
func (s *TraceSnapshot) toIR() ir.IRObject {
	ticks := make(ir.IRArray, len(s.Trace))
	for i, tick := range s.Trace {
		fired := make(ir.IRArray, len(tick.Fired))
		for j, a := range tick.Fired {
			fired[j] = ir.IRObject{
				"rule_id": ir.IRString(a.RuleID),
				"kind":    ir.IRString(a.Kind),
				"subject": ir.IRString(a.Subject),
				"value":   ir.Float(a.Value),
			}
		}
		obj := ir.IRObject{
			"seq":   ir.IRInt(tick.Seq),
			"dt":    ir.Float(tick.DT),
			"hash":  ir.IRString(tick.Hash),
			"fired": fired,
		}
		if len(tick.Faults) > 0 {
			obj["faults"] = ir.Strings(tick.Faults)
		}
		ticks[i] = obj
	}
	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"run_id":        ir.IRString(s.RunID),
		"trace":         ticks,
	}
}

// MarshalTrace returns the canonical JSON of a result's trace.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		RunID:        result.RunID,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toIR())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Extra goldie options, such as a different fixture dir, are applied after
// the defaults.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result, opts...); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result, opts ...goldie.Option) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	}, opts...)...)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

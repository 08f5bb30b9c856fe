package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/ledcore/internal/behavior"
	"github.com/roach88/ledcore/internal/behavior/builtin"
	"github.com/roach88/ledcore/internal/compiler"
	"github.com/roach88/ledcore/internal/engine"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
	"github.com/roach88/ledcore/internal/store"
	"github.com/roach88/ledcore/internal/testutil"
)

// DefaultRunID is the run id of scenarios that set none.
const DefaultRunID = "test-run-default"

// Harness is the test execution engine.
// It runs scenarios with a fixed run id and a deterministic step sequence,
// recording every tick in a private audit store.
type Harness struct {
	store    *store.Store
	registry *behavior.Registry
	logger   *slog.Logger
	project  ir.Project
	hash     string
}

// execution is one engine run of a scenario.
type execution struct {
	eng   *engine.Engine
	trace []TickTrace
	last  engine.TickResult
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load, compile and validate the project
// 3. Execute steps, recording every tick
// 4. Replay the run if a deterministic assertion asks for it
// 5. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	p, err := loadProject(scenario)
	if err != nil {
		return nil, err
	}
	reg := builtin.NewRegistry()
	if errs := compiler.Validate(p, compiler.WithBehaviors(reg.IDs())); len(errs) > 0 {
		return nil, fmt.Errorf("invalid project: %w", validationErrors(errs))
	}
	hash, err := ir.ProjectFingerprint(*p)
	if err != nil {
		return nil, fmt.Errorf("fingerprint project: %w", err)
	}

	h := &Harness{
		store:    st,
		registry: reg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		project:  *p,
		hash:     hash,
	}
	ctx := context.Background()

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	ex, err := h.execute(ctx, scenario, runID)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.RunID = runID
	result.Trace = ex.trace
	captureState(result, ex)

	actx := &AssertionContext{Ctx: ctx}
	if needsReplay(scenario.Assertions) {
		replay, err := h.execute(ctx, scenario, runID+"-replay")
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		div, err := st.FirstDivergence(ctx, runID, replay.eng.RunID())
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		actx.Replay = &div
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func loadProject(sc *Scenario) (*ir.Project, error) {
	var (
		p   *ir.Project
		err error
	)
	if sc.ProjectSource != "" {
		p, err = compiler.CompileProjectSource(sc.Name+".cue", []byte(sc.ProjectSource))
	} else {
		p, err = compiler.LoadProject(sc.Project)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if sc.Seed != nil {
		p.Seed = *sc.Seed
	}
	return p, nil
}

func validationErrors(errs []compiler.ValidationError) error {
	out := make([]error, len(errs))
	for i := range errs {
		out[i] = errs[i]
	}
	return errors.Join(out...)
}

func needsReplay(as []Assertion) bool {
	return slices.ContainsFunc(as, func(a Assertion) bool { return a.Type == AssertDeterministic })
}

// execute runs the scenario's steps on a fresh engine and records the run.
func (h *Harness) execute(ctx context.Context, sc *Scenario, runID string) (*execution, error) {
	ex := &execution{}
	eng, err := engine.New(h.project, h.registry,
		engine.WithLogger(h.logger),
		engine.WithRunIDGenerator(testutil.FixedRunID(runID)),
		engine.WithObserver(func(res engine.TickResult) {
			ex.last = res
			ex.trace = append(ex.trace, traceOf(res))
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	ex.eng = eng

	if err := h.store.CreateRun(ctx, ir.RunRecord{
		ID:            runID,
		Project:       h.project.Name,
		ProjectHash:   h.hash,
		Seed:          h.project.Seed,
		DT:            baseDT(sc),
		EngineVersion: ir.EngineVersion,
		OpSetVersion:  ir.OpSetVersion,
	}); err != nil {
		return nil, err
	}

	steps := testutil.NewStepSequence(baseDT(sc), sc.Jitter, h.project.Seed)
	for i, step := range sc.Steps {
		if err := applyInputs(eng, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		in := signal.Inputs{Audio: step.Audio.frame()}
		for n := 0; n < step.Ticks; n++ {
			dt := step.DT
			if dt == 0 {
				dt = steps.Next()
			}
			frame, err := eng.Tick(dt, in)
			if err != nil {
				return nil, fmt.Errorf("step %d tick %d: %w", i, n, err)
			}
			tr := ex.trace[len(ex.trace)-1]
			tr.DT = dt
			ex.trace[len(ex.trace)-1] = tr

			if err := h.store.WriteFrame(ctx, ir.FrameRecord{RunID: runID, Seq: frame.Seq, Hash: frame.Hash}); err != nil {
				return nil, err
			}
			if err := h.store.WriteFirings(ctx, engine.Firings(runID, ex.last.Rules)); err != nil {
				return nil, err
			}
		}
		h.logger.Info("step completed", "step", i, "run", runID, "frame", eng.Frame())
	}
	return ex, nil
}

func baseDT(sc *Scenario) float64 {
	if sc.DT > 0 {
		return sc.DT
	}
	return engine.DefaultDT
}

// applyInputs applies a step's host inputs in a fixed order: toggles,
// layer enables, then reorders, each by sorted name.
func applyInputs(eng *engine.Engine, step Step) error {
	for _, name := range slices.Sorted(maps.Keys(step.Toggles)) {
		if err := eng.Apply(engine.ToggleInput(name, step.Toggles[name])); err != nil {
			return err
		}
	}
	for _, id := range slices.Sorted(maps.Keys(step.Layers)) {
		if err := eng.Apply(engine.LayerEnabledInput(id, step.Layers[id])); err != nil {
			return err
		}
	}
	for _, id := range slices.Sorted(maps.Keys(step.Order)) {
		if err := eng.Apply(engine.LayerOrderInput(id, step.Order[id])); err != nil {
			return err
		}
	}
	return nil
}

func (a *AudioStep) frame() *signal.AudioFrame {
	if a == nil {
		return nil
	}
	var f signal.AudioFrame
	var sum float64
	for i, v := range a.Mono {
		f.Mono[i], f.Left[i], f.Right[i] = v, v, v
		sum += v
	}
	if a.Energy != nil {
		f.Energy = *a.Energy
	} else {
		f.Energy = sum / signal.Bands
	}
	return &f
}

func traceOf(res engine.TickResult) TickTrace {
	tr := TickTrace{
		Seq:   res.Frame.Seq,
		Hash:  res.Frame.Hash,
		Fired: slices.Clone(res.Rules.Applied),
	}
	for _, err := range res.Report.Faults {
		tr.Faults = append(tr.Faults, err.Error())
	}
	return tr
}

func captureState(r *Result, ex *execution) {
	vars := ex.eng.Vars().Vars()
	maps.Copy(r.Vars, vars.Number)
	maps.Copy(r.Toggles, vars.Toggle)
	for _, l := range ex.eng.Project().Layers {
		r.Params[l.ID] = ex.eng.Vars().LayerParams(l.ID)
	}
	if ex.last.Frame != nil {
		r.Pixels = slices.Clone(ex.last.Frame.Pixels)
	}
	r.Probes = slices.Clone(ex.last.Report.Probes)
}

package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/behavior"
	"github.com/roach88/ledcore/internal/behavior/builtin"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/rules"
	"github.com/roach88/ledcore/internal/signal"
	"github.com/roach88/ledcore/internal/testutil"
)

// broken panics on every tick.
type broken struct{}

func (broken) Capabilities() ir.BehaviorCapabilities {
	return ir.BehaviorCapabilities{ID: "broken", FirmwareMapping: true}
}
func (broken) Init(map[string]any) (behavior.State, error) { return nil, nil }
func (broken) Tick(behavior.State, float64, signal.Snapshot, behavior.Params) (behavior.State, error) {
	panic("index out of range")
}
func (broken) Render(behavior.State, behavior.TargetSpec) ([]ir.RGB, error) { return nil, nil }

func registry() *behavior.Registry {
	return behavior.NewRegistry().MustRegister(builtin.All()...).MustRegister(broken{})
}

func newEngine(t *testing.T, p ir.Project, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{WithRunIDGenerator(testutil.FixedRunID("run-test"))}, opts...)
	e, err := New(p, registry(), opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_New(t *testing.T) {
	e := newEngine(t, testutil.StripProject())

	assert.Equal(t, "run-test", e.RunID())
	assert.Equal(t, int64(0), e.Frame())
	assert.Equal(t, "strip-demo", e.Project().Name)
	assert.Len(t, e.Compositor().Layers(), 3)

	_, ok := e.Bus().Describe("vars.number.hue")
	assert.True(t, ok, "variables must be registered on the bus")

	f, err := e.Latest()
	require.NoError(t, err)
	assert.Nil(t, f, "nothing published before the first tick")
}

func TestEngine_NewFreezesRegistry(t *testing.T) {
	reg := registry()
	_, err := New(testutil.OrderingProject(), reg)
	require.NoError(t, err)
	assert.True(t, reg.Frozen())
}

func TestEngine_NewFailsFastOnReferences(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.Project)
	}{
		{"rule var", func(p *ir.Project) { p.Rules[0].Action.Var = "hew" }},
		{"rule signal", func(p *ir.Project) { p.Rules[2].Trigger.Signal = "audio.enrgy" }},
		{"layer behavior", func(p *ir.Project) { p.Layers[0].Behavior = "rainbo" }},
		{"layer zone", func(p *ir.Project) { p.Layers[1].Target.Zone = "back" }},
		{"modulator source", func(p *ir.Project) { p.Layers[1].Modulators[0].Source = "audio.mono7" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.StripProject()
			tt.mutate(&p)
			_, err := New(p, registry())
			require.Error(t, err)
			assert.True(t, ir.IsUnresolvedReference(err), "got %v", err)
		})
	}
}

func TestEngine_RuleOrderingWithinOnePass(t *testing.T) {
	e := newEngine(t, testutil.OrderingProject())

	_, err := e.Tick(DefaultDT, signal.Inputs{})
	require.NoError(t, err)

	x, _ := e.Vars().Number("x")
	flag, _ := e.Vars().Toggle("flag")
	assert.Equal(t, 1.0, x)
	assert.True(t, flag)
}

func TestEngine_FrameSeqMatchesClock(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	for i := int64(1); i <= 5; i++ {
		f, err := e.Tick(DefaultDT, signal.Inputs{})
		require.NoError(t, err)
		assert.Equal(t, i, f.Seq)
		assert.Equal(t, i, e.Frame())
		assert.Equal(t, i, e.Bus().Current().Frame())
	}
}

func runHashes(t *testing.T, p ir.Project, steps []float64) []string {
	t.Helper()
	e := newEngine(t, p)
	out := make([]string, len(steps))
	for i, dt := range steps {
		f, err := e.Tick(dt, signal.Inputs{})
		require.NoError(t, err)
		out[i] = f.Hash
	}
	return out
}

func TestEngine_Deterministic(t *testing.T) {
	steps := testutil.NewStepSequence(DefaultDT, 0.3, 11).Take(240)

	for _, p := range []ir.Project{testutil.StripProject(), testutil.MatrixProject()} {
		t.Run(p.Name, func(t *testing.T) {
			a := runHashes(t, p, steps)
			b := runHashes(t, p, steps)
			assert.Equal(t, a, b, "replays must be byte-identical")
		})
	}
}

func TestEngine_SeedChangesAudio(t *testing.T) {
	steps := testutil.NewStepSequence(DefaultDT, 0, 0).Take(120)
	p1 := testutil.StripProject()
	p2 := testutil.StripProject()
	p2.Seed = p1.Seed + 1
	assert.NotEqual(t, runHashes(t, p1, steps), runHashes(t, p2, steps))
}

func TestEngine_QueuedToggleAppliedBeforeTick(t *testing.T) {
	e := newEngine(t, testutil.StripProject())

	require.True(t, e.Enqueue(ToggleInput("loud", true)))
	assert.Equal(t, 1, e.QueueLen())

	var seen bool
	e.observers = append(e.observers, func(r TickResult) {
		seen = r.Snapshot.Number("vars.toggle.loud") == 1
	})
	_, err := e.Tick(DefaultDT, signal.Inputs{})
	require.NoError(t, err)
	assert.Equal(t, 0, e.QueueLen())
	assert.True(t, seen, "toggle must be visible in the tick's snapshot")
}

func TestEngine_BadQueuedInputIsSkipped(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	e.Enqueue(ToggleInput("missing", true))
	e.Enqueue(LayerEnabledInput("base", false))

	_, err := e.Tick(DefaultDT, signal.Inputs{})
	require.NoError(t, err)

	l, ok := e.Compositor().Layer("base")
	require.True(t, ok)
	assert.False(t, l.Decl.Enabled, "inputs after a rejected one still apply")
}

func TestEngine_ApplyErrors(t *testing.T) {
	e := newEngine(t, testutil.StripProject())

	tests := []struct {
		name string
		in   Input
	}{
		{"unknown toggle", ToggleInput("nope", true)},
		{"unknown layer", LayerEnabledInput("nope", true)},
		{"unknown reorder", LayerOrderInput("nope", 2)},
		{"audio without frame", Input{Kind: InputAudio}},
		{"unknown kind", Input{Kind: InputKind(42)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Apply(tt.in)
			require.Error(t, err)
			assert.True(t, IsInputError(err), "got %v", err)
		})
	}
}

func TestEngine_DisablingEveryLayerBlanksFrame(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	for _, id := range []string{"base", "chase", "pulse"} {
		require.NoError(t, e.Apply(LayerEnabledInput(id, false)))
	}
	f, err := e.Tick(DefaultDT, signal.Inputs{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.Nonzero())
}

func TestEngine_ReorderInput(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	require.NoError(t, e.Apply(LayerOrderInput("base", 10)))
	layers := e.Compositor().Layers()
	assert.Equal(t, "base", layers[len(layers)-1].Decl.ID)
}

func TestEngine_LatchedAudioLastsOneTick(t *testing.T) {
	e := newEngine(t, testutil.StripProject(), WithAudioSource(signal.NewSimulatedAudio(0)))

	var energies []float64
	e.observers = append(e.observers, func(r TickResult) {
		energies = append(energies, r.Snapshot.Number(signal.AudioEnergy))
	})

	var loud signal.AudioFrame
	loud.Energy = 0.95
	e.Enqueue(AudioInput(loud))

	for i := 0; i < 2; i++ {
		_, err := e.Tick(DefaultDT, signal.Inputs{})
		require.NoError(t, err)
	}
	require.Len(t, energies, 2)
	assert.Equal(t, 0.95, energies[0])
	assert.NotEqual(t, 0.95, energies[1])
}

func TestEngine_ExplicitAudioOverridesLatched(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	var latched, explicit signal.AudioFrame
	latched.Energy = 0.2
	explicit.Energy = 0.7
	require.NoError(t, e.Apply(AudioInput(latched)))

	var got float64
	e.observers = append(e.observers, func(r TickResult) { got = r.Snapshot.Number(signal.AudioEnergy) })
	_, err := e.Tick(DefaultDT, signal.Inputs{Audio: &explicit})
	require.NoError(t, err)
	assert.Equal(t, 0.7, got)
}

func TestEngine_InvalidStep(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	for _, dt := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		_, err := e.Tick(dt, signal.Inputs{})
		require.Error(t, err)
		var re *RuntimeError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, ErrCodeInvalidStep, re.Code)
	}
	assert.Equal(t, int64(0), e.Frame(), "a rejected tick advances nothing")
}

func TestEngine_FaultIsolatedAndObserved(t *testing.T) {
	p := testutil.StripProject()
	bad := testutil.Layer("bad", "broken", 5)
	p.Layers = append(p.Layers, bad)

	var faults int
	e := newEngine(t, p, WithObserver(func(r TickResult) { faults += len(r.Report.Faults) }))

	f, err := e.Tick(DefaultDT, signal.Inputs{})
	require.NoError(t, err)
	assert.Positive(t, f.Nonzero(), "healthy layers still render")
	assert.Equal(t, 1, faults)

	l, _ := e.Compositor().Layer("bad")
	assert.Equal(t, int64(1), l.Faults)
}

func TestEngine_ObserverAndFirings(t *testing.T) {
	var results []TickResult
	e := newEngine(t, testutil.StripProject(), WithObserver(func(r TickResult) { results = append(results, r) }))

	_, err := e.Tick(DefaultDT, signal.Inputs{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	fs := Firings(e.RunID(), results[0].Rules)
	require.GreaterOrEqual(t, len(fs), 2)
	assert.Equal(t, "drift", fs[0].RuleID)
	assert.Equal(t, ir.ActionAddVar, fs[0].Action)
	assert.Equal(t, "vars.number.hue", fs[0].Subject)
	assert.InDelta(t, 0.01, fs[0].Value, 1e-12)
	assert.Equal(t, "chase_hue", fs[1].RuleID)
	assert.Equal(t, "chase.hue", fs[1].Subject)
	for i, f := range fs {
		assert.Equal(t, "run-test", f.RunID)
		assert.Equal(t, int64(1), f.Frame)
		assert.Equal(t, i, f.Ordinal)
	}

	assert.Nil(t, Firings("r", rules.Result{Frame: 1}))
}

func TestEngine_LatestFromOtherGoroutines(t *testing.T) {
	e := newEngine(t, testutil.MatrixProject())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				f, err := e.Latest()
				if !assert.NoError(t, err) {
					return
				}
				if f != nil {
					assert.Len(t, f.Pixels, 128)
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		_, err := e.Tick(DefaultDT, signal.Inputs{})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestEngine_RunUntilCancelled(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := e.Run(ctx, 0.005)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, e.Frame())
	assert.False(t, e.Enqueue(ToggleInput("loud", true)), "queue closed after Run returns")
}

func TestEngine_RunStopsOnStop(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(context.Background(), 0.002) }()

	e.Enqueue(ToggleInput("loud", true))
	require.Eventually(t, func() bool { return e.Frame() >= 3 }, 2*time.Second, time.Millisecond)
	e.Stop()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestEngine_RunRejectsBadInterval(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	err := e.Run(context.Background(), 0)
	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ErrCodeInvalidStep, re.Code)
}

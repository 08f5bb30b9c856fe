package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/ledcore/internal/behavior"
	"github.com/roach88/ledcore/internal/compositor"
	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/rules"
	"github.com/roach88/ledcore/internal/signal"
)

// DefaultDT is the default logical tick length: 60 frames per second.
const DefaultDT = 1.0 / 60

// TickResult is everything one tick produced. Observers receive it after
// the frame is published.
type TickResult struct {
	RunID    string
	Frame    *compositor.Frame
	Rules    rules.Result
	Report   compositor.Report
	Snapshot signal.Snapshot
}

// Observer is called on the tick goroutine after every tick. Observers must
// not retain the snapshot's maps or mutate the frame.
type Observer func(TickResult)

// Engine is the single-writer tick pipeline.
//
// Per tick: apply queued host inputs, update the signal bus, run the rule
// pass, compose layers, publish the frame. A tick runs to completion and is
// never cancelled part-way.
//
// Thread-safety model:
//   - Enqueue, Latest, Frame, RunID: safe from any goroutine
//   - Tick, Apply, Run, Soak: must be called from exactly one goroutine
type Engine struct {
	runID   string
	project ir.Project
	clock   *Clock
	queue   *inputQueue
	pub     *compositor.Publisher
	logger  *slog.Logger

	bus  *signal.Bus
	vars *rules.Store
	eval *rules.Evaluator
	comp *compositor.Compositor

	audio     signal.AudioSource
	ids       RunIDGenerator
	observers []Observer

	latched *signal.AudioFrame // most recent InputAudio, consumed by the next tick
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine and every stage it builds.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithAudioSource replaces the seeded audio simulator.
func WithAudioSource(src signal.AudioSource) EngineOption {
	return func(e *Engine) { e.audio = src }
}

// WithPublisher publishes frames to p instead of a private publisher.
func WithPublisher(p *compositor.Publisher) EngineOption {
	return func(e *Engine) { e.pub = p }
}

// WithObserver registers fn to run after every tick.
func WithObserver(fn Observer) EngineOption {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// WithRunIDGenerator sets how the run id is chosen. Default UUIDv7.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// New loads p against the behavior registry. Every structural error
// (duplicate signal, unresolved reference, invalid layer) surfaces here with
// the offending id, before the first tick. The registry is frozen.
func New(p ir.Project, reg *behavior.Registry, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		project: p,
		clock:   NewClock(),
		queue:   newInputQueue(),
		logger:  slog.Default(),
		ids:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pub == nil {
		e.pub = &compositor.Publisher{}
	}
	e.runID = e.ids.Generate()
	reg.Freeze()

	busOpts := []signal.Option{signal.WithSeed(p.Seed), signal.WithLogger(e.logger)}
	if e.audio != nil {
		busOpts = append(busOpts, signal.WithAudioSource(e.audio))
	}
	e.bus = signal.NewBus(busOpts...)

	e.vars = rules.NewStore(p.Variables, p.Layers)
	if err := e.vars.Register(e.bus); err != nil {
		return nil, fmt.Errorf("register variables: %w", err)
	}

	eval, err := rules.New(p.Rules, e.bus, e.vars, export.IsExportSafe, rules.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	e.eval = eval

	comp, err := compositor.New(p, reg, e.vars, e.bus, compositor.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("load layers: %w", err)
	}
	e.comp = comp

	e.logger.Info("engine loaded",
		"run", e.runID,
		"project", p.Name,
		"leds", p.Leds,
		"layers", len(p.Layers),
		"rules", len(p.Rules),
		"signals", len(e.bus.IDs()))
	return e, nil
}

// RunID returns the id of this run.
func (e *Engine) RunID() string { return e.runID }

// Project returns the loaded project.
func (e *Engine) Project() ir.Project { return e.project }

// Frame returns the number of ticks completed. Safe from any goroutine.
func (e *Engine) Frame() int64 { return e.clock.Current() }

// Bus returns the signal bus. Tick goroutine only.
func (e *Engine) Bus() *signal.Bus { return e.bus }

// Vars returns the live variable store. Tick goroutine only.
func (e *Engine) Vars() *rules.Store { return e.vars }

// Rules returns the rule evaluator. Tick goroutine only.
func (e *Engine) Rules() *rules.Evaluator { return e.eval }

// Compositor returns the layer compositor. Tick goroutine only.
func (e *Engine) Compositor() *compositor.Compositor { return e.comp }

// Latest returns the last published frame, verified against its hash.
// Safe from any goroutine.
func (e *Engine) Latest() (*compositor.Frame, error) {
	return e.pub.Load()
}

// Enqueue submits a host input from any goroutine. It is applied before the
// next tick. Returns false after Stop.
func (e *Engine) Enqueue(in Input) bool {
	return e.queue.Enqueue(in)
}

// QueueLen returns the number of pending inputs.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Apply applies one host input immediately. Tick goroutine only; call
// between ticks.
func (e *Engine) Apply(in Input) error {
	switch in.Kind {
	case InputAudio:
		if in.Audio == nil {
			return newInputError(in, "audio input without a frame")
		}
		f := *in.Audio
		e.latched = &f
		return nil
	case InputToggle:
		if err := e.vars.ToggleFromUI(in.Name, in.Bool); err != nil {
			return fmt.Errorf("%w: %w", newInputError(in, "unknown toggle %q", in.Name), err)
		}
		return nil
	case InputLayerEnabled:
		if err := e.comp.SetEnabled(in.Name, in.Bool); err != nil {
			return fmt.Errorf("%w: %w", newInputError(in, "unknown layer %q", in.Name), err)
		}
		return nil
	case InputLayerOrder:
		if err := e.comp.Reorder(in.Name, in.Order); err != nil {
			return fmt.Errorf("%w: %w", newInputError(in, "unknown layer %q", in.Name), err)
		}
		return nil
	}
	return newInputError(in, "unknown input kind %d", int(in.Kind))
}

// applyQueued drains the input queue. Bad inputs are logged and skipped.
func (e *Engine) applyQueued() {
	for _, in := range e.queue.Drain() {
		if err := e.Apply(in); err != nil {
			e.logger.Warn("host input rejected",
				"run", e.runID,
				"kind", in.Kind,
				"name", in.Name,
				"error", err)
		}
	}
}

// Tick advances the engine by dt logical seconds and returns the published
// frame. in.Audio, when set, overrides both the simulator and any latched
// audio input for this tick.
//
// The only errors are an invalid dt (nothing is advanced) and a torn frame
// (fatal).
func (e *Engine) Tick(dt float64, in signal.Inputs) (*compositor.Frame, error) {
	res, err := e.step(dt, in)
	if err != nil {
		return nil, err
	}
	return res.Frame, nil
}

func (e *Engine) step(dt float64, in signal.Inputs) (TickResult, error) {
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return TickResult{}, &RuntimeError{
			Code:    ErrCodeInvalidStep,
			Message: fmt.Sprintf("dt must be finite and non-negative, got %g", dt),
			RunID:   e.runID,
			Frame:   e.clock.Current(),
		}
	}

	e.applyQueued()
	if in.Audio == nil && e.latched != nil {
		in.Audio = e.latched
	}
	e.latched = nil

	seq := e.clock.Next()
	snap := e.bus.Update(dt, in)
	ruleRes := e.eval.Evaluate(snap)
	frame, rep := e.comp.Compose(dt, snap)

	e.pub.Publish(frame)
	if _, err := e.pub.Load(); err != nil {
		e.logger.Error("published frame failed verification",
			"run", e.runID,
			"frame", seq,
			"error", err)
		return TickResult{}, fmt.Errorf("publish frame %d: %w", seq, err)
	}

	e.logger.Debug("tick",
		"run", e.runID,
		"frame", seq,
		"fired", len(ruleRes.Applied),
		"faults", len(rep.Faults),
		"hash", frame.Hash)

	res := TickResult{RunID: e.runID, Frame: frame, Rules: ruleRes, Report: rep, Snapshot: snap}
	for _, fn := range e.observers {
		fn(res)
	}
	return res, nil
}

// Run ticks in real time every dt seconds until ctx is cancelled or Stop is
// called. Queued inputs are applied as they arrive, between ticks.
//
// Returns ctx.Err() on cancellation, nil after Stop, or the first fatal tick
// error.
func (e *Engine) Run(ctx context.Context, dt float64) error {
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return &RuntimeError{
			Code:    ErrCodeInvalidStep,
			Message: fmt.Sprintf("run interval must be positive, got %g", dt),
			RunID:   e.runID,
		}
	}
	interval := time.Duration(dt * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("engine starting", "run", e.runID, "dt", dt)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled", "run", e.runID, "frame", e.Frame())
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Stop, so this case fires
			// repeatedly once stopped.
			if e.queue.Closed() {
				e.logger.Info("engine stopping: stopped", "run", e.runID, "frame", e.Frame())
				return nil
			}
			e.applyQueued()

		case <-ticker.C:
			if _, err := e.step(dt, signal.Inputs{}); err != nil {
				return err
			}
		}
	}
}

// Stop closes the input queue, which makes Run return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Firings converts a rule pass into audit records for run.
func Firings(runID string, res rules.Result) []ir.RuleFiring {
	if len(res.Applied) == 0 {
		return nil
	}
	out := make([]ir.RuleFiring, len(res.Applied))
	for i, a := range res.Applied {
		out[i] = ir.RuleFiring{
			RunID:   runID,
			Frame:   res.Frame,
			Ordinal: i,
			RuleID:  a.RuleID,
			Action:  a.Kind,
			Subject: a.Subject,
			Value:   a.Value,
		}
	}
	return out
}

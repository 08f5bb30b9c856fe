// Package signal implements the Signal Bus: the process-scoped store of
// named, typed values updated once per tick.
//
// The bus is owned by the tick goroutine and is not safe for concurrent use.
// Consumers on other goroutines receive Snapshots, which are immutable.
//
// Update is the only mutator of time, frame and audio signals. Variable and
// toggle signals are owned by the rule evaluator; the bus reads them through
// a VarReader when it builds a snapshot.
package signal

import (
	"log/slog"
	"maps"

	"github.com/roach88/ledcore/internal/ir"
)

// VarReader exposes the live user variable/toggle store by signal id.
type VarReader interface {
	Lookup(id string) (Value, bool)
}

// Inputs are external inputs applied by one Update.
type Inputs struct {
	// Audio replaces the simulated spectrum for this tick when non-nil.
	Audio *AudioFrame
}

// Snapshot is the immutable state of the bus at one logical instant.
type Snapshot struct {
	frame  int64
	t      float64
	values map[string]Value
}

// Frame returns the engine frame counter of the snapshot.
func (s Snapshot) Frame() int64 { return s.frame }

// Time returns the logical time of the snapshot in seconds.
func (s Snapshot) Time() float64 { return s.t }

// Get returns the value of id and whether it exists.
func (s Snapshot) Get(id string) (Value, bool) {
	v, ok := s.values[id]
	return v, ok
}

// Read returns the value of id or UnknownSignal.
func (s Snapshot) Read(id string) (Value, error) {
	v, ok := s.values[id]
	if !ok {
		return Value{}, &ir.Error{Code: ir.ErrCodeUnknownSignal, Subject: id, Message: "not in snapshot"}
	}
	return v, nil
}

// Number returns the numeric value of id, or 0 if absent.
func (s Snapshot) Number(id string) float64 {
	return s.values[id].Number()
}

// Len returns the number of signals in the snapshot.
func (s Snapshot) Len() int { return len(s.values) }

// Bus is the Signal Bus.
type Bus struct {
	defs   map[string]Descriptor
	order  []string
	audio  AudioSource
	vars   VarReader
	logger *slog.Logger

	t     float64
	frame int64
	last  Snapshot
}

// Option configures a Bus.
type Option func(*Bus)

// WithAudioSource sets the audio backend. Default is NewSimulatedAudio(0).
func WithAudioSource(src AudioSource) Option {
	return func(b *Bus) { b.audio = src }
}

// WithSeed uses a simulated audio generator seeded with seed.
func WithSeed(seed uint64) Option {
	return func(b *Bus) { b.audio = NewSimulatedAudio(seed) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// NewBus creates a bus with all builtin signals registered.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		defs:   make(map[string]Descriptor),
		audio:  NewSimulatedAudio(0),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, d := range Builtins() {
		// Builtin ids are unique by construction.
		_ = b.Register(d.ID, d.Kind, d.Source)
	}
	b.last = b.snapshot(0, b.audio.Sample(0))
	return b
}

// AttachVars connects the live variable store. Must be called before the
// first Update if any variable signals are registered.
func (b *Bus) AttachVars(r VarReader) {
	b.vars = r
}

// Register adds a signal. Registering an id twice fails with DuplicateSignal.
func (b *Bus) Register(id string, kind Kind, source Source) error {
	if _, exists := b.defs[id]; exists {
		return &ir.Error{Code: ir.ErrCodeDuplicateSignal, Subject: id, Message: "already registered"}
	}
	b.defs[id] = Descriptor{ID: id, Kind: kind, Source: source}
	b.order = append(b.order, id)
	return nil
}

// Describe returns the descriptor of a registered signal.
func (b *Bus) Describe(id string) (Descriptor, bool) {
	d, ok := b.defs[id]
	return d, ok
}

// IDs returns registered ids in registration order.
func (b *Bus) IDs() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Read returns the current value of id from the latest snapshot, or
// UnknownSignal if id was never registered.
func (b *Bus) Read(id string) (Value, error) {
	d, ok := b.defs[id]
	if !ok {
		return Value{}, &ir.Error{Code: ir.ErrCodeUnknownSignal, Subject: id, Message: "never registered"}
	}
	if v, ok := b.last.values[id]; ok {
		return v, nil
	}
	return zero(d.Kind), nil
}

// Current returns the latest snapshot.
func (b *Bus) Current() Snapshot { return b.last }

// Update advances time, frame and audio signals by one tick and returns the
// new snapshot. All signals in the snapshot reflect the same logical instant.
func (b *Bus) Update(dt float64, in Inputs) Snapshot {
	b.t += dt
	b.frame++
	audio := b.audio.Sample(b.t)
	if in.Audio != nil {
		audio = *in.Audio
	}
	b.last = b.snapshot(dt, audio)
	b.logger.Debug("signal bus updated", "frame", b.frame, "t", b.t, "signals", len(b.last.values))
	return b.last
}

func (b *Bus) snapshot(dt float64, audio AudioFrame) Snapshot {
	values := make(map[string]Value, len(b.defs))
	values[TimeT] = Float(b.t)
	values[TimeDT] = Float(dt)
	values[EngineFrame] = Int(b.frame)
	values[AudioEnergy] = Float(audio.Energy)
	for i := 0; i < Bands; i++ {
		values[MonoID(i)] = Float(audio.Mono[i])
		values[LeftID(i)] = Float(audio.Left[i])
		values[RightID(i)] = Float(audio.Right[i])
	}
	for _, id := range b.order {
		if _, set := values[id]; set {
			continue
		}
		d := b.defs[id]
		v := zero(d.Kind)
		if d.Source.Live() && b.vars != nil {
			if lv, ok := b.vars.Lookup(id); ok {
				v = lv
			}
		} else if prev, ok := b.last.values[id]; ok {
			v = prev
		}
		values[id] = v
	}
	return Snapshot{frame: b.frame, t: b.t, values: values}
}

// Values returns a copy of the snapshot's values, for probes and tests.
func (s Snapshot) Values() map[string]Value {
	return maps.Clone(s.values)
}

func zero(k Kind) Value {
	switch k {
	case KindInt:
		return Int(0)
	case KindBool:
		return Bool(false)
	default:
		return Float(0)
	}
}

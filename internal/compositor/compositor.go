// Package compositor composes an ordered stack of behavior layers into one
// frame buffer.
//
// Layers are composed in ascending order_index (stable for equal indices).
// A disabled layer is skipped entirely: its behavior is not ticked and it
// contributes nothing. A faulting behavior contributes nothing for that tick
// and is reported; it never aborts the composite.
package compositor

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/ledcore/internal/behavior"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// ParamReader supplies the base parameter values rules have written.
// *rules.Store satisfies it.
type ParamReader interface {
	LayerParams(layerID string) map[string]float64
}

// SignalSet resolves modulator signal sources. *signal.Bus satisfies it.
type SignalSet interface {
	Describe(id string) (signal.Descriptor, bool)
	IDs() []string
}

// Layer is the runtime form of a layer. Its behavior state is exclusively
// owned by this value.
type Layer struct {
	Decl     ir.Layer
	Behavior behavior.Behavior
	State    behavior.State
	Indices  []int
	Faults   int64
}

// Probe is the per-layer diagnostic for one composed frame.
type Probe struct {
	LayerID string `json:"layer_id"`
	Enabled bool   `json:"enabled"`
	Nonzero int    `json:"nonzero"` // nonzero pixels in the layer's contribution
	Fault   string `json:"fault,omitempty"`
}

// Report accompanies each composed frame.
type Report struct {
	Probes []Probe
	Faults []error
}

// Compositor owns the layer stack.
type Compositor struct {
	size    int
	layout  ir.Layout
	layers  []*Layer
	params  ParamReader
	logger  *slog.Logger
	scratch []ir.RGB
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) { c.logger = l }
}

// New resolves every layer's target, behavior and modulators and
// initializes behavior state. All reference errors surface here.
func New(p ir.Project, reg *behavior.Registry, params ParamReader, signals SignalSet, opts ...Option) (*Compositor, error) {
	c := &Compositor{
		size:    p.Leds,
		layout:  p.Layout,
		params:  params,
		logger:  slog.Default(),
		scratch: make([]ir.RGB, p.Leds),
	}
	for _, opt := range opts {
		opt(c)
	}
	if p.Leds <= 0 {
		return nil, ir.NewError(ir.ErrCodeInvalidProject, p.Name, "leds must be positive, got %d", p.Leds)
	}

	seen := make(map[string]bool, len(p.Layers))
	for _, decl := range p.Layers {
		if seen[decl.ID] {
			return nil, ir.NewError(ir.ErrCodeInvalidProject, decl.ID, "duplicate layer id")
		}
		seen[decl.ID] = true

		l, err := c.load(p, decl, reg, signals)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", decl.ID, err)
		}
		c.layers = append(c.layers, l)
	}
	c.sort()
	return c, nil
}

func (c *Compositor) load(p ir.Project, decl ir.Layer, reg *behavior.Registry, signals SignalSet) (*Layer, error) {
	if !ir.ValidBlendModes[decl.Blend] {
		return nil, ir.NewError(ir.ErrCodeInvalidProject, string(decl.Blend), "unknown blend mode")
	}
	if decl.Opacity < 0 || decl.Opacity > 1 || math.IsNaN(decl.Opacity) {
		return nil, ir.NewError(ir.ErrCodeInvalidProject, decl.ID, "opacity %g outside [0,1]", decl.Opacity)
	}
	b, ok := reg.Lookup(decl.Behavior)
	if !ok {
		return nil, &ir.Error{
			Code:       ir.ErrCodeUnresolvedReference,
			Subject:    decl.Behavior,
			Message:    "unknown behavior",
			Suggestion: ir.Suggest(decl.Behavior, reg.IDs()),
		}
	}
	for _, m := range decl.Modulators {
		switch m.Mode {
		case ir.ModAdd, ir.ModMul, ir.ModSet:
		default:
			return nil, ir.NewError(ir.ErrCodeInvalidProject, string(m.Mode), "unknown modulator mode")
		}
		if m.Source == ir.SourceLFOSine {
			continue
		}
		if _, ok := signals.Describe(m.Source); !ok {
			return nil, &ir.Error{
				Code:       ir.ErrCodeUnresolvedReference,
				Subject:    m.Source,
				Message:    "unknown modulator source",
				Suggestion: ir.Suggest(m.Source, signals.IDs()),
			}
		}
	}
	idx, err := ResolveTarget(p, decl)
	if err != nil {
		return nil, err
	}
	state, err := behavior.SafeInit(b, decl.Config)
	if err != nil {
		return nil, err
	}
	return &Layer{Decl: decl, Behavior: b, State: state, Indices: idx}, nil
}

func (c *Compositor) sort() {
	slices.SortStableFunc(c.layers, func(a, b *Layer) int {
		return a.Decl.OrderIndex - b.Decl.OrderIndex
	})
}

// Size returns the frame length.
func (c *Compositor) Size() int { return c.size }

// Layers returns the layer stack in compositing order.
func (c *Compositor) Layers() []*Layer { return c.layers }

// Layer returns the runtime layer with id.
func (c *Compositor) Layer(id string) (*Layer, bool) {
	for _, l := range c.layers {
		if l.Decl.ID == id {
			return l, true
		}
	}
	return nil, false
}

// SetEnabled enables or disables a layer. Structural edit: call between ticks.
func (c *Compositor) SetEnabled(id string, enabled bool) error {
	l, ok := c.Layer(id)
	if !ok {
		return ir.NewError(ir.ErrCodeUnresolvedReference, id, "unknown layer")
	}
	l.Decl.Enabled = enabled
	return nil
}

// Reorder moves a layer to a new order_index. Structural edit: call between ticks.
func (c *Compositor) Reorder(id string, orderIndex int) error {
	l, ok := c.Layer(id)
	if !ok {
		return ir.NewError(ir.ErrCodeUnresolvedReference, id, "unknown layer")
	}
	l.Decl.OrderIndex = orderIndex
	c.sort()
	return nil
}

// Compose ticks and renders every enabled layer and merges it into a new
// frame. The returned frame is immutable.
func (c *Compositor) Compose(dt float64, snap signal.Snapshot) (*Frame, Report) {
	buf := c.scratch
	clear(buf)
	var rep Report

	for _, l := range c.layers {
		probe := Probe{LayerID: l.Decl.ID, Enabled: l.Decl.Enabled}
		if !l.Decl.Enabled {
			rep.Probes = append(rep.Probes, probe)
			continue
		}

		base := c.params.LayerParams(l.Decl.ID)
		if base == nil {
			base = map[string]float64{}
		}
		if _, ok := base["opacity"]; !ok {
			base["opacity"] = l.Decl.Opacity
		}
		params := behavior.Params(EffectiveParams(base, l.Decl.Modulators, snap))

		next, err := behavior.SafeTick(l.Behavior, l.State, dt, snap, params)
		if err != nil {
			c.recordFault(l, &probe, &rep, err, snap.Frame())
			rep.Probes = append(rep.Probes, probe)
			continue
		}
		l.State = next

		px, err := behavior.SafeRender(l.Behavior, l.State, behavior.TargetSpec{
			Indices: l.Indices,
			Size:    c.size,
			Layout:  c.layout,
			Params:  params,
		})
		if err != nil {
			c.recordFault(l, &probe, &rep, err, snap.Frame())
			rep.Probes = append(rep.Probes, probe)
			continue
		}

		opacity := params["opacity"]
		for i, idx := range l.Indices {
			src := px[i]
			if opacity > 0 && !src.IsZero() {
				probe.Nonzero++
			}
			buf[idx] = Blend(l.Decl.Blend, buf[idx], src, opacity)
		}
		rep.Probes = append(rep.Probes, probe)
	}

	return NewFrame(snap.Frame(), buf), rep
}

func (c *Compositor) recordFault(l *Layer, probe *Probe, rep *Report, err error, frame int64) {
	l.Faults++
	probe.Fault = err.Error()
	rep.Faults = append(rep.Faults, fmt.Errorf("layer %q: %w", l.Decl.ID, err))
	c.logger.Warn("behavior fault isolated",
		"layer", l.Decl.ID,
		"behavior", l.Decl.Behavior,
		"frame", frame,
		"error", err)
}

package builtin

import (
	"math"

	"github.com/roach88/ledcore/internal/behavior"
	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// Solid fills its target with one color.
type Solid struct{}

type solidState struct {
	Color ir.RGB
}

func (Solid) Capabilities() ir.BehaviorCapabilities {
	return ir.BehaviorCapabilities{
		ID:              "solid",
		FirmwareMapping: true,
		MinMemory:       ir.MemoryTiny,
		Params:          []ir.ParamSpec{export.MustParam("brightness")},
	}
}

func (Solid) Init(config map[string]any) (behavior.State, error) {
	c, err := colorFromConfig(config, "color", ir.RGB{R: 1, G: 1, B: 1})
	if err != nil {
		return nil, err
	}
	return solidState{Color: c}, nil
}

func (Solid) Tick(state behavior.State, _ float64, _ signal.Snapshot, _ behavior.Params) (behavior.State, error) {
	return state, nil
}

func (Solid) Render(state behavior.State, target behavior.TargetSpec) ([]ir.RGB, error) {
	s := state.(solidState)
	c := scale(s.Color, target.Params.Get("brightness", 1))
	out := make([]ir.RGB, len(target.Indices))
	for i := range out {
		out[i] = c
	}
	return out, nil
}

// Chase moves a soft-edged dot along its target.
type Chase struct{}

type chaseState struct {
	Pos float64 // normalized position in [0,1)
}

func (Chase) Capabilities() ir.BehaviorCapabilities {
	return ir.BehaviorCapabilities{
		ID:              "chase",
		FirmwareMapping: true,
		MinMemory:       ir.MemoryTiny,
		Params: []ir.ParamSpec{
			export.MustParam("speed"),
			export.MustParam("width"),
			export.MustParam("hue"),
			export.MustParam("brightness"),
		},
	}
}

func (Chase) Init(map[string]any) (behavior.State, error) {
	return chaseState{}, nil
}

func (Chase) Tick(state behavior.State, dt float64, _ signal.Snapshot, p behavior.Params) (behavior.State, error) {
	s := state.(chaseState)
	s.Pos = wrap01(s.Pos + p.Get("speed", 1)*dt*0.1)
	return s, nil
}

func (Chase) Render(state behavior.State, target behavior.TargetSpec) ([]ir.RGB, error) {
	s := state.(chaseState)
	n := float64(len(target.Indices))
	width := math.Max(target.Params.Get("width", 2), 0.5)
	c := hsv(target.Params.Get("hue", 0), 1, target.Params.Get("brightness", 1))
	center := s.Pos * n

	out := make([]ir.RGB, len(target.Indices))
	for i := range out {
		d := math.Abs(float64(i) - center)
		d = math.Min(d, n-d) // circular
		if k := 1 - d/width; k > 0 {
			out[i] = scale(c, k)
		}
	}
	return out, nil
}

// Rainbow scrolls a hue gradient along its target.
type Rainbow struct{}

type rainbowState struct {
	Phase float64
}

func (Rainbow) Capabilities() ir.BehaviorCapabilities {
	return ir.BehaviorCapabilities{
		ID:              "rainbow",
		FirmwareMapping: true,
		MinMemory:       ir.MemoryTiny,
		Params: []ir.ParamSpec{
			export.MustParam("speed"),
			export.MustParam("density"),
			export.MustParam("saturation"),
			export.MustParam("brightness"),
		},
	}
}

func (Rainbow) Init(map[string]any) (behavior.State, error) {
	return rainbowState{}, nil
}

func (Rainbow) Tick(state behavior.State, dt float64, _ signal.Snapshot, p behavior.Params) (behavior.State, error) {
	s := state.(rainbowState)
	s.Phase = wrap01(s.Phase + p.Get("speed", 1)*dt*0.1)
	return s, nil
}

func (Rainbow) Render(state behavior.State, target behavior.TargetSpec) ([]ir.RGB, error) {
	s := state.(rainbowState)
	n := float64(len(target.Indices))
	density := target.Params.Get("density", 1)
	sat := target.Params.Get("saturation", 1)
	val := target.Params.Get("brightness", 1)

	out := make([]ir.RGB, len(target.Indices))
	for i := range out {
		out[i] = hsv(s.Phase+density*float64(i)/n, sat, val)
	}
	return out, nil
}

// Pulse follows the audio energy envelope.
type Pulse struct{}

type pulseState struct {
	Level float64
}

func (Pulse) Capabilities() ir.BehaviorCapabilities {
	return ir.BehaviorCapabilities{
		ID:              "pulse",
		FirmwareMapping: true,
		RequiresAudio:   true,
		MinMemory:       ir.MemorySmall,
		Params: []ir.ParamSpec{
			export.MustParam("hue"),
			export.MustParam("saturation"),
			export.MustParam("brightness"),
		},
	}
}

func (Pulse) Init(map[string]any) (behavior.State, error) {
	return pulseState{}, nil
}

func (Pulse) Tick(state behavior.State, dt float64, signals signal.Snapshot, _ behavior.Params) (behavior.State, error) {
	s := state.(pulseState)
	target := signals.Number(signal.AudioEnergy)
	s.Level += (target - s.Level) * math.Min(1, dt*10)
	return s, nil
}

func (Pulse) Render(state behavior.State, target behavior.TargetSpec) ([]ir.RGB, error) {
	s := state.(pulseState)
	c := hsv(target.Params.Get("hue", 0), target.Params.Get("saturation", 1), target.Params.Get("brightness", 1)*s.Level)
	out := make([]ir.RGB, len(target.Indices))
	for i := range out {
		out[i] = c
	}
	return out, nil
}

package builtin

import (
	"math"

	"github.com/roach88/ledcore/internal/behavior"
	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// Plasma is a 2D plasma field. Requires a matrix layout.
type Plasma struct{}

type plasmaState struct {
	T float64
}

func (Plasma) Capabilities() ir.BehaviorCapabilities {
	return ir.BehaviorCapabilities{
		ID:              "plasma",
		FirmwareMapping: true,
		RequiresMatrix:  true,
		MinMemory:       ir.MemoryMedium,
		Params: []ir.ParamSpec{
			export.MustParam("speed"),
			export.MustParam("hue"),
			export.MustParam("brightness"),
		},
	}
}

func (Plasma) Init(map[string]any) (behavior.State, error) {
	return plasmaState{}, nil
}

func (Plasma) Tick(state behavior.State, dt float64, _ signal.Snapshot, p behavior.Params) (behavior.State, error) {
	s := state.(plasmaState)
	s.T += p.Get("speed", 1) * dt
	return s, nil
}

func (Plasma) Render(state behavior.State, target behavior.TargetSpec) ([]ir.RGB, error) {
	s := state.(plasmaState)
	w := target.Layout.Width
	if w <= 0 {
		w = target.Size
	}
	hue := target.Params.Get("hue", 0)
	val := target.Params.Get("brightness", 1)

	out := make([]ir.RGB, len(target.Indices))
	for i, idx := range target.Indices {
		x := float64(idx % w)
		y := float64(idx / w)
		v := math.Sin(x*0.5+s.T) + math.Sin(y*0.5+s.T) + math.Sin((x+y)*0.25+s.T)
		out[i] = hsv(hue+v/6+0.5, 1, val)
	}
	return out, nil
}

// Sparkle scatters twinkles from a host-side noise texture. It has a
// firmware mapping but its output cannot be reproduced on-device.
type Sparkle struct{}

type sparkleState struct {
	Seed  uint64
	Frame uint64
}

func (Sparkle) Capabilities() ir.BehaviorCapabilities {
	return ir.BehaviorCapabilities{
		ID:                "sparkle",
		FirmwareMapping:   true,
		PreviewOnly:       true,
		PreviewOnlyReason: "uses host-side noise texture",
		MinMemory:         ir.MemorySmall,
		Params: []ir.ParamSpec{
			export.MustParam("density"),
			export.MustParam("brightness"),
		},
	}
}

func (Sparkle) Init(config map[string]any) (behavior.State, error) {
	s := sparkleState{Seed: 1}
	if v, ok := config["seed"].(float64); ok {
		s.Seed = uint64(v)
	}
	return s, nil
}

func (Sparkle) Tick(state behavior.State, _ float64, _ signal.Snapshot, _ behavior.Params) (behavior.State, error) {
	s := state.(sparkleState)
	s.Frame++
	return s, nil
}

func (Sparkle) Render(state behavior.State, target behavior.TargetSpec) ([]ir.RGB, error) {
	s := state.(sparkleState)
	density := target.Params.Get("density", 0.1)
	val := target.Params.Get("brightness", 1)

	out := make([]ir.RGB, len(target.Indices))
	for i, idx := range target.Indices {
		if noise(s.Seed, s.Frame, uint64(idx)) < density {
			out[i] = ir.RGB{R: val, G: val, B: val}
		}
	}
	return out, nil
}

// noise is a deterministic hash in [0,1) (splitmix64 finalizer).
func noise(seed, frame, idx uint64) float64 {
	z := seed ^ (frame * 0x9e3779b97f4a7c15) ^ (idx * 0xbf58476d1ce4e5b9)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float64(z>>11) / float64(1<<53)
}

// ScreenMirror mirrors the host screen's edge colors. Host-only; there is no
// firmware runtime for it. Without a capture source it renders black.
type ScreenMirror struct{}

func (ScreenMirror) Capabilities() ir.BehaviorCapabilities {
	return ir.BehaviorCapabilities{
		ID:                "screen_mirror",
		FirmwareMapping:   false,
		PreviewOnly:       true,
		PreviewOnlyReason: "requires host screen capture",
		MinMemory:         ir.MemoryLarge,
	}
}

func (ScreenMirror) Init(map[string]any) (behavior.State, error) {
	return struct{}{}, nil
}

func (ScreenMirror) Tick(state behavior.State, _ float64, _ signal.Snapshot, _ behavior.Params) (behavior.State, error) {
	return state, nil
}

func (ScreenMirror) Render(_ behavior.State, target behavior.TargetSpec) ([]ir.RGB, error) {
	return make([]ir.RGB, len(target.Indices)), nil
}

// Package builtin provides the reference behaviors shipped with ledcore.
//
// These exercise every branch of the export gate: plain exportable
// behaviors, an audio-reactive one, a matrix-only one, a preview-only one
// and one with no firmware mapping at all.
package builtin

import (
	"fmt"
	"math"

	"github.com/roach88/ledcore/internal/behavior"
	"github.com/roach88/ledcore/internal/ir"
)

// hsv converts hue/saturation/value in [0,1] to RGB.
func hsv(h, s, v float64) ir.RGB {
	h = wrap01(h)
	s = clamp01(s)
	v = clamp01(v)
	if s == 0 {
		return ir.RGB{R: v, G: v, B: v}
	}
	h6 := h * 6
	sector := math.Floor(h6)
	f := h6 - sector
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch int(sector) % 6 {
	case 0:
		return ir.RGB{R: v, G: t, B: p}
	case 1:
		return ir.RGB{R: q, G: v, B: p}
	case 2:
		return ir.RGB{R: p, G: v, B: t}
	case 3:
		return ir.RGB{R: p, G: q, B: v}
	case 4:
		return ir.RGB{R: t, G: p, B: v}
	default:
		return ir.RGB{R: v, G: p, B: q}
	}
}

func scale(c ir.RGB, k float64) ir.RGB {
	return ir.RGB{R: clamp01(c.R * k), G: clamp01(c.G * k), B: clamp01(c.B * k)}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func wrap01(v float64) float64 {
	v = math.Mod(v, 1)
	if v < 0 {
		v++
	}
	return v
}

// colorFromConfig reads a [r, g, b] list in [0,1].
func colorFromConfig(config map[string]any, key string, def ir.RGB) (ir.RGB, error) {
	raw, ok := config[key]
	if !ok {
		return def, nil
	}
	list, ok := raw.([]any)
	if !ok || len(list) != 3 {
		return ir.RGB{}, fmt.Errorf("%s: expected [r, g, b]", key)
	}
	var ch [3]float64
	for i, v := range list {
		switch n := v.(type) {
		case float64:
			ch[i] = n
		case int:
			ch[i] = float64(n)
		case int64:
			ch[i] = float64(n)
		default:
			return ir.RGB{}, fmt.Errorf("%s[%d]: expected number, got %T", key, i, v)
		}
	}
	return ir.RGB{R: clamp01(ch[0]), G: clamp01(ch[1]), B: clamp01(ch[2])}, nil
}

// NewRegistry returns a frozen registry holding every builtin behavior.
func NewRegistry() *behavior.Registry {
	return behavior.NewRegistry().MustRegister(All()...).Freeze()
}

// All returns one instance of every builtin behavior.
func All() []behavior.Behavior {
	return []behavior.Behavior{
		Solid{},
		Chase{},
		Rainbow{},
		Pulse{},
		Plasma{},
		Sparkle{},
		ScreenMirror{},
	}
}

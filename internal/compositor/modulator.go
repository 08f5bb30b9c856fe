package compositor

import (
	"math"

	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// sampleModulator returns the modulation signal at the snapshot's time.
// lfo_sine is bipolar in [-1,1]; audio signals are mapped from [0,1] to
// [-1,1]; other signals are used as-is. Bias is added last.
func sampleModulator(m ir.Modulator, snap signal.Snapshot) float64 {
	var sig float64
	switch {
	case m.Source == ir.SourceLFOSine:
		sig = math.Sin(2 * math.Pi * m.RateHz * snap.Time())
	case signal.RequiresAudio(m.Source):
		sig = (clamp01(snap.Number(m.Source)) - 0.5) * 2
	default:
		sig = snap.Number(m.Source)
	}
	return sig + m.Bias
}

// applyModulator combines a base value with a modulation signal.
func applyModulator(base, sig float64, m ir.Modulator) float64 {
	switch m.Mode {
	case ir.ModAdd:
		return base + sig*m.Amount
	case ir.ModSet:
		return sig * m.Amount
	default:
		return base * (1 + sig*m.Amount)
	}
}

// EffectiveParams applies modulators in declaration order on top of the
// base values written by rules, and clamps allow-listed parameters to their
// range. Rule writes set the base; modulators are the last writer.
func EffectiveParams(base map[string]float64, mods []ir.Modulator, snap signal.Snapshot) map[string]float64 {
	out := make(map[string]float64, len(base)+len(mods))
	for k, v := range base {
		out[k] = v
	}
	for _, m := range mods {
		b, ok := out[m.Param]
		if !ok {
			b = defaultBase(m.Param)
		}
		out[m.Param] = applyModulator(b, sampleModulator(m, snap), m)
	}
	for k, v := range out {
		if spec, ok := export.Param(k); ok {
			out[k] = math.Max(spec.Min, math.Min(spec.Max, v))
		}
	}
	return out
}

// defaultBase is the implicit base of an undeclared parameter: the top of
// its range for unit parameters, zero otherwise.
func defaultBase(param string) float64 {
	switch param {
	case "opacity", "brightness", "saturation", "density":
		return 1
	}
	return 0
}

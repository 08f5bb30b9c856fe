package compositor

import (
	"math"

	"github.com/roach88/ledcore/internal/ir"
)

// BlendChannel merges one normalized channel of src into dst.
//
//	over     src*o + dst*(1-o)
//	add      clamp(dst + src*o)
//	max      max(dst, src*o)
//	multiply dst * (1 - o*(1-src))
//	screen   1 - (1-dst)*(1-src*o)
//
// Unknown modes behave as over; the compiler rejects them before load.
func BlendChannel(mode ir.BlendMode, dst, src, opacity float64) float64 {
	switch mode {
	case ir.BlendAdd:
		return clamp01(dst + src*opacity)
	case ir.BlendMax:
		return math.Max(dst, src*opacity)
	case ir.BlendMultiply:
		return dst * (1 - opacity*(1-src))
	case ir.BlendScreen:
		return 1 - (1-dst)*(1-src*opacity)
	default:
		return src*opacity + dst*(1-opacity)
	}
}

// Blend merges a pixel channel-wise.
func Blend(mode ir.BlendMode, dst, src ir.RGB, opacity float64) ir.RGB {
	return ir.RGB{
		R: BlendChannel(mode, dst.R, src.R, opacity),
		G: BlendChannel(mode, dst.G, src.G, opacity),
		B: BlendChannel(mode, dst.B, src.B, opacity),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

package export

import (
	"math"
	"slices"

	"github.com/roach88/ledcore/internal/ir"
)

// Op-set v1 operation names. Both the preview runtime and generated firmware
// conform to this list; see ir.OpSetVersion.
const (
	OpTriggerTick      = "trigger.tick"
	OpTriggerRising    = "trigger.rising"
	OpTriggerThreshold = "trigger.threshold"

	OpCondCmp = "cond.cmp"
	OpCondAny = "cond.any"

	OpActionSetVar     = "action.set_var"
	OpActionAddVar     = "action.add_var"
	OpActionFlipToggle = "action.flip_toggle"
	OpActionSetToggle  = "action.set_toggle"
	OpActionSetParam   = "action.set_param"

	OpExprConst  = "expr.const"
	OpExprSignal = "expr.signal"

	OpModLFO    = "mod.lfo"
	OpModSignal = "mod.signal"
)

// Encoding is a numeric parameter encoding in the op-set.
type Encoding string

const (
	EncodingQ8  Encoding = "num.q8"
	EncodingQ16 Encoding = "num.q16"
	EncodingF32 Encoding = "num.f32"
)

// encodingPreference is finest first.
var encodingPreference = []Encoding{EncodingF32, EncodingQ16, EncodingQ8}

// OpSetV1 is the complete v1 op-set.
var OpSetV1 = []string{
	OpTriggerTick, OpTriggerRising, OpTriggerThreshold,
	OpCondCmp, OpCondAny,
	OpActionSetVar, OpActionAddVar, OpActionFlipToggle, OpActionSetToggle, OpActionSetParam,
	OpExprConst, OpExprSignal,
	string(EncodingQ8), string(EncodingQ16), string(EncodingF32),
	OpModLFO, OpModSignal,
}

// TriggerOp maps a trigger kind to its op name.
func TriggerOp(k ir.TriggerKind) string { return "trigger." + string(k) }

// ActionOp maps an action kind to its op name.
func ActionOp(k ir.ActionKind) string { return "action." + string(k) }

// ExprOp maps an expression source to its op name.
func ExprOp(s ir.ExprSource) string { return "expr." + string(s) }

// ModulatorOp maps a modulator source to its op name.
func ModulatorOp(source string) string {
	if source == ir.SourceLFOSine {
		return OpModLFO
	}
	return OpModSignal
}

// WorstCaseError returns the largest representable error of e over
// [min, max]: half a quantization step for fixed point, one ulp of the
// single-precision significand for f32.
func (e Encoding) WorstCaseError(min, max float64) float64 {
	span := max - min
	switch e {
	case EncodingQ8:
		return span / 255 / 2
	case EncodingQ16:
		return span / 65535 / 2
	case EncodingF32:
		return math.Max(math.Abs(min), math.Abs(max)) * math.Pow(2, -24)
	default:
		return math.Inf(1)
	}
}

// toleranceTable is the v1 export-safe parameter allow-list
// (ir.ToleranceTableVersion).
var toleranceTable = map[string]ir.ParamSpec{
	"opacity":    {Name: "opacity", Min: 0, Max: 1, Tolerance: 0.004},
	"brightness": {Name: "brightness", Min: 0, Max: 1, Tolerance: 0.004},
	"hue":        {Name: "hue", Min: 0, Max: 1, Tolerance: 0.002},
	"saturation": {Name: "saturation", Min: 0, Max: 1, Tolerance: 0.004},
	"speed":      {Name: "speed", Min: 0, Max: 10, Tolerance: 0.05},
	"width":      {Name: "width", Min: 0, Max: 64, Tolerance: 0.5},
	"density":    {Name: "density", Min: 0, Max: 1, Tolerance: 0.004},
	"phase":      {Name: "phase", Min: 0, Max: 1, Tolerance: 0.001},
}

// Param returns the allow-list entry for name.
func Param(name string) (ir.ParamSpec, bool) {
	p, ok := toleranceTable[name]
	return p, ok
}

// MustParam is like Param but panics if name is not on the allow-list.
// Use only with literal names.
func MustParam(name string) ir.ParamSpec {
	p, ok := toleranceTable[name]
	if !ok {
		panic("export: parameter not on allow-list: " + name)
	}
	return p
}

// IsExportSafe reports whether name is on the allow-list.
func IsExportSafe(name string) bool {
	_, ok := toleranceTable[name]
	return ok
}

// AllowList returns the allow-listed parameter names, sorted.
func AllowList() []string {
	names := make([]string, 0, len(toleranceTable))
	for n := range toleranceTable {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ChooseEncoding picks the finest encoding the target supports and returns
// its worst-case error over the spec's range. Fails with
// UnrepresentableEncoding when the target has none.
func ChooseEncoding(t ir.ExportTarget, spec ir.ParamSpec) (Encoding, float64, error) {
	for _, enc := range encodingPreference {
		if t.Supports(string(enc)) {
			return enc, enc.WorstCaseError(spec.Min, spec.Max), nil
		}
	}
	return "", math.Inf(1), ir.NewError(ir.ErrCodeUnrepresentableEncoding, spec.Name,
		"target %s supports no numeric encoding", t.ID)
}

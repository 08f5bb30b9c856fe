package ir

// Project is the static, already-loaded project declaration.
//
// The core treats Project as validated input. Structural validation lives in
// the compiler package; the runtime still fails fast on unresolved references.
type Project struct {
	Name      string           `json:"name"`
	Leds      int              `json:"leds"`
	Layout    Layout           `json:"layout"`
	Seed      uint64           `json:"seed"`
	Variables Variables        `json:"variables"`
	Zones     map[string]Zone  `json:"zones,omitempty"`
	Groups    map[string][]int `json:"groups,omitempty"`
	Layers    []Layer          `json:"layers"`
	Rules     []Rule           `json:"rules"` // Declaration order is evaluation order
}

// Layout describes the physical LED arrangement.
type Layout struct {
	Kind   LayoutKind `json:"kind"`
	Width  int        `json:"width,omitempty"`  // matrix only
	Height int        `json:"height,omitempty"` // matrix only
}

// LayoutKind is "strip" or "matrix".
type LayoutKind string

const (
	LayoutStrip  LayoutKind = "strip"
	LayoutMatrix LayoutKind = "matrix"
)

// Variables declares user variables and toggles with their initial values.
// Names are explicit: rules never create variables implicitly.
type Variables struct {
	Number map[string]float64 `json:"number,omitempty"`
	Toggle map[string]bool    `json:"toggle,omitempty"`
}

// Zone is a contiguous half-open index range [Start, End).
type Zone struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of LEDs covered by the zone.
func (z Zone) Len() int {
	if z.End <= z.Start {
		return 0
	}
	return z.End - z.Start
}

// Layer is a static layer declaration. Behavior state is created from it at
// load and is owned exclusively by the compositor's runtime layer.
type Layer struct {
	ID         string             `json:"id"`
	OrderIndex int                `json:"order_index"`
	Enabled    bool               `json:"enabled"`
	Opacity    float64            `json:"opacity"`
	Blend      BlendMode          `json:"blend"`
	Target     TargetSpec         `json:"target"`
	Behavior   string             `json:"behavior"`
	Params     map[string]float64 `json:"params,omitempty"`
	Config     map[string]any     `json:"config,omitempty"`
	Modulators []Modulator        `json:"modulators,omitempty"`
}

// BlendMode selects the per-channel merge of a layer into the running buffer.
type BlendMode string

const (
	BlendOver     BlendMode = "over"
	BlendAdd      BlendMode = "add"
	BlendMax      BlendMode = "max"
	BlendMultiply BlendMode = "multiply"
	BlendScreen   BlendMode = "screen"
)

// ValidBlendModes defines allowed blend modes.
var ValidBlendModes = map[BlendMode]bool{
	BlendOver:     true,
	BlendAdd:      true,
	BlendMax:      true,
	BlendMultiply: true,
	BlendScreen:   true,
}

// TargetKind selects how a layer's pixels are restricted.
type TargetKind string

const (
	TargetAll   TargetKind = "all"
	TargetZone  TargetKind = "zone"
	TargetGroup TargetKind = "group"
)

// TargetSpec references the LEDs a layer writes to.
// Zone and Group refer to named entries in Project.Zones / Project.Groups.
type TargetSpec struct {
	Kind  TargetKind `json:"kind"`
	Zone  string     `json:"zone,omitempty"`
	Group string     `json:"group,omitempty"`
}

// Modulator drives a layer parameter on top of its base value.
// Precedence: rule SetParam writes the base; modulators apply afterwards
// during compositing.
type Modulator struct {
	Param  string        `json:"param"`
	Source string        `json:"source"` // "lfo_sine" or a signal id
	Mode   ModulatorMode `json:"mode"`
	Amount float64       `json:"amount"`
	RateHz float64       `json:"rate_hz,omitempty"`
	Bias   float64       `json:"bias,omitempty"`
}

// ModulatorMode is add, mul or set.
type ModulatorMode string

const (
	ModAdd ModulatorMode = "add"
	ModMul ModulatorMode = "mul"
	ModSet ModulatorMode = "set"
)

// SourceLFOSine is the builtin sine LFO modulator source.
const SourceLFOSine = "lfo_sine"

// Rule is a trigger/action pair evaluated once per tick in declaration order.
type Rule struct {
	ID         string      `json:"id"`
	Enabled    bool        `json:"enabled"`
	Trigger    Trigger     `json:"trigger"`
	Conditions []Condition `json:"conditions,omitempty"`
	CondMode   CondMode    `json:"cond_mode,omitempty"`
	Action     Action      `json:"action"`
}

// TriggerKind enumerates trigger variants.
type TriggerKind string

const (
	TriggerTick      TriggerKind = "tick"
	TriggerRising    TriggerKind = "rising"
	TriggerThreshold TriggerKind = "threshold"
)

// Trigger decides whether a rule fires this tick.
//
//   - tick: fires every evaluation.
//   - rising: fires on a false→true transition of the condition. Without Op the
//     condition is truthiness of Signal; with Op it is `Signal Op Value`.
//   - threshold: hysteretic; active when value >= Upper, inactive when
//     value <= Lower; fires on inactive→active only.
type Trigger struct {
	Kind   TriggerKind `json:"kind"`
	Signal string      `json:"signal,omitempty"`
	Op     CompareOp   `json:"op,omitempty"`
	Value  float64     `json:"value,omitempty"`
	Upper  float64     `json:"upper,omitempty"`
	Lower  float64     `json:"lower,omitempty"`
}

// CompareOp is a numeric comparison operator.
type CompareOp string

const (
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpEQ CompareOp = "=="
)

// ValidCompareOps defines allowed comparison operators.
var ValidCompareOps = map[CompareOp]bool{
	OpGT: true, OpGE: true, OpLT: true, OpLE: true, OpEQ: true,
}

// Compare applies the operator. Unknown operators compare as ">".
func (op CompareOp) Compare(a, b float64) bool {
	switch op {
	case OpGE:
		return a >= b
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	default:
		return a > b
	}
}

// Condition gates a fired trigger: `Signal Op Value`.
type Condition struct {
	Signal string    `json:"signal"`
	Op     CompareOp `json:"op"`
	Value  float64   `json:"value"`
}

// CondMode combines conditions: "all" (default) or "any".
type CondMode string

const (
	CondAll CondMode = "all"
	CondAny CondMode = "any"
)

// ActionKind enumerates action variants.
type ActionKind string

const (
	ActionSetVar     ActionKind = "set_var"
	ActionAddVar     ActionKind = "add_var"
	ActionFlipToggle ActionKind = "flip_toggle"
	ActionSetToggle  ActionKind = "set_toggle"
	ActionSetParam   ActionKind = "set_param"
)

// Action is the single effect a fired rule applies.
//
// Var names a number variable (set_var, add_var) or a toggle (flip_toggle,
// set_toggle). For add_var the evaluated Value is the delta. Precision, when
// non-zero, tightens the parameter tolerance a set_param must be encoded with.
type Action struct {
	Kind      ActionKind `json:"kind"`
	Var       string     `json:"var,omitempty"`
	Layer     string     `json:"layer,omitempty"`
	Param     string     `json:"param,omitempty"`
	Value     Expr       `json:"value"`
	Precision float64    `json:"precision,omitempty"`
}

// ExprSource is const or signal.
type ExprSource string

const (
	ExprConst  ExprSource = "const"
	ExprSignal ExprSource = "signal"
)

// Expr is a value expression: src*Scale + Bias, or (result > 0.5) if AsBool.
// A zero Scale is treated as 1.
type Expr struct {
	Src    ExprSource `json:"src"`
	Const  float64    `json:"const,omitempty"`
	Signal string     `json:"signal,omitempty"`
	Scale  float64    `json:"scale,omitempty"`
	Bias   float64    `json:"bias,omitempty"`
	AsBool bool       `json:"as_bool,omitempty"`
}

// Const is a shorthand for a constant expression.
func Const(v float64) Expr {
	return Expr{Src: ExprConst, Const: v}
}

// Ref is a shorthand for a signal expression.
func Ref(signal string) Expr {
	return Expr{Src: ExprSignal, Signal: signal}
}

// MemoryClass is a coarse RAM class for targets and behavior requirements.
// Classes are ordered: tiny < small < medium < large.
type MemoryClass string

const (
	MemoryTiny   MemoryClass = "tiny"
	MemorySmall  MemoryClass = "small"
	MemoryMedium MemoryClass = "medium"
	MemoryLarge  MemoryClass = "large"
)

// Rank returns the ordering rank of the class; unknown classes rank 0.
func (m MemoryClass) Rank() int {
	switch m {
	case MemoryTiny:
		return 1
	case MemorySmall:
		return 2
	case MemoryMedium:
		return 3
	case MemoryLarge:
		return 4
	default:
		return 0
	}
}

// ExportTarget is an immutable target capability descriptor.
type ExportTarget struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name,omitempty"`
	SupportsMatrix     bool        `json:"supports_matrix"`
	SupportsAudio      bool        `json:"supports_audio"`
	MemoryClass        MemoryClass `json:"memory_class"`
	RAMBytes           int         `json:"ram_bytes,omitempty"`
	MaxLedsHard        int         `json:"max_leds_hard,omitempty"`
	MaxLedsRecommended int         `json:"max_leds_recommended,omitempty"`
	SupportedOpSet     []string    `json:"supported_op_set"`
	Experimental       bool        `json:"experimental,omitempty"`
}

// Supports reports whether op is in the target's op-set.
func (t ExportTarget) Supports(op string) bool {
	for _, o := range t.SupportedOpSet {
		if o == op {
			return true
		}
	}
	return false
}

// ParamSpec declares a behavior-exposed parameter and its numeric contract.
type ParamSpec struct {
	Name      string  `json:"name"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Tolerance float64 `json:"tolerance"`
}

// BehaviorCapabilities is the export metadata every behavior declares.
// It is pure data: the gate never calls into behavior code.
type BehaviorCapabilities struct {
	ID                string      `json:"id"`
	FirmwareMapping   bool        `json:"firmware_mapping"`
	PreviewOnly       bool        `json:"preview_only"`
	PreviewOnlyReason string      `json:"preview_only_reason,omitempty"`
	RequiresMatrix    bool        `json:"requires_matrix"`
	RequiresAudio     bool        `json:"requires_audio"`
	MinMemory         MemoryClass `json:"min_memory,omitempty"`
	Params            []ParamSpec `json:"params,omitempty"`
}

// EligibilityStatus is the gate's verdict.
type EligibilityStatus string

const (
	StatusExportable  EligibilityStatus = "EXPORTABLE"
	StatusPreviewOnly EligibilityStatus = "PREVIEW_ONLY"
	StatusBlocked     EligibilityStatus = "BLOCKED"
)

// EligibilityResult is the total, pure verdict for one (behavior, target) pair.
// Fingerprints let two releases' matrices be diffed: a status flip with both
// fingerprints unchanged is a regression.
type EligibilityResult struct {
	BehaviorID          string            `json:"behavior_id"`
	TargetID            string            `json:"target_id"`
	Status              EligibilityStatus `json:"status"`
	Reason              string            `json:"reason,omitempty"`
	BehaviorFingerprint string            `json:"behavior_fingerprint"`
	TargetFingerprint   string            `json:"target_fingerprint"`
}

// RGB is one pixel with channels normalized to [0,1].
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// IsZero reports whether all channels are exactly zero.
func (c RGB) IsZero() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

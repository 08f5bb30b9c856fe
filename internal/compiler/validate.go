package compiler

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Project structure errors (E101-E109)
	ErrProjectNameEmpty = "E101" // name is required
	ErrInvalidLedCount  = "E102" // leds must be positive
	ErrInvalidLayout    = "E103" // unknown layout kind or matrix size mismatch
	ErrInvalidEnum      = "E104" // unknown blend/target/trigger/action/op/mode value
	ErrDuplicateName    = "E105" // duplicate layer or rule id
	ErrOutOfRange       = "E106" // value outside its allowed range
	ErrMissingField     = "E107" // required field missing

	// Reference errors (E110-E119)
	ErrUnknownBehavior    = "E110" // layer behavior not in the registry
	ErrUnknownTarget      = "E111" // layer targets an undeclared zone or group
	ErrUnknownSignal      = "E112" // signal id not in the catalogue
	ErrUnknownVariable    = "E113" // variable or toggle not declared
	ErrUnknownLayer       = "E114" // set_param on an undeclared layer
	ErrParamNotExportSafe = "E115" // set_param parameter not on the allow-list

	// Target pack errors (E120-E129)
	ErrTargetIDEmpty      = "E120" // target id is required
	ErrInvalidMemoryClass = "E121" // unknown memory class
	ErrUnknownOp          = "E122" // op not in op-set v1
	ErrInvalidLedLimits   = "E123" // negative or inverted LED limits
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field      string `json:"field"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Line       int    `json:"line,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	if e.Line > 0 {
		msg = fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// Option configures Validate.
type Option func(*validateConfig)

type validateConfig struct {
	behaviors []string
}

// WithBehaviors enables behavior-id checks against ids.
func WithBehaviors(ids []string) Option {
	return func(c *validateConfig) { c.behaviors = ids }
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports Project and ExportTarget types.
func Validate(v any, opts ...Option) []ValidationError {
	var cfg validateConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	switch ir := v.(type) {
	case *ir.Project:
		return validateProject(ir, cfg)
	case ir.Project:
		return validateProject(&ir, cfg)
	case *ir.ExportTarget:
		return validateTarget(ir)
	case ir.ExportTarget:
		return validateTarget(&ir)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

type projectValidator struct {
	p       *ir.Project
	cfg     validateConfig
	errs    []ValidationError
	signals []string
	layers  map[string]bool
}

func (pv *projectValidator) add(code, field, format string, args ...any) {
	pv.errs = append(pv.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
}

func (pv *projectValidator) unresolved(code, field, msg, want string, candidates []string) {
	pv.errs = append(pv.errs, ValidationError{
		Field:      field,
		Message:    msg,
		Code:       code,
		Suggestion: ir.Suggest(want, candidates),
	})
}

func validateProject(p *ir.Project, cfg validateConfig) []ValidationError {
	pv := &projectValidator{p: p, cfg: cfg, layers: map[string]bool{}}

	// E101: name is required
	if strings.TrimSpace(p.Name) == "" {
		pv.add(ErrProjectNameEmpty, "name", "name is required and must be non-empty")
	}

	// E102: leds must be positive
	if p.Leds <= 0 {
		pv.add(ErrInvalidLedCount, "leds", "leds must be positive, got %d", p.Leds)
	}

	switch p.Layout.Kind {
	case ir.LayoutStrip, "":
	case ir.LayoutMatrix:
		if p.Layout.Width <= 0 || p.Layout.Height <= 0 || p.Layout.Width*p.Layout.Height != p.Leds {
			pv.add(ErrInvalidLayout, "layout", "matrix %dx%d does not cover %d LEDs",
				p.Layout.Width, p.Layout.Height, p.Leds)
		}
	default:
		pv.add(ErrInvalidLayout, "layout.kind", "unknown layout kind %q", p.Layout.Kind)
	}

	for name, v := range p.Variables.Number {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			pv.add(ErrOutOfRange, "variables.number."+name, "initial value must be finite")
		}
	}

	for _, name := range sortedKeys(p.Zones) {
		z := p.Zones[name]
		if z.Start < 0 || z.End > p.Leds || z.Start >= z.End {
			pv.add(ErrOutOfRange, "zones."+name, "zone [%d,%d) must be non-empty and inside [0,%d)", z.Start, z.End, p.Leds)
		}
	}
	for _, name := range sortedKeys(p.Groups) {
		g := p.Groups[name]
		if len(g) == 0 {
			pv.add(ErrOutOfRange, "groups."+name, "group is empty")
		}
		for _, idx := range g {
			if idx < 0 || idx >= p.Leds {
				pv.add(ErrOutOfRange, "groups."+name, "index %d outside [0,%d)", idx, p.Leds)
				break
			}
		}
	}

	pv.signals = projectSignals(p)
	for i, l := range p.Layers {
		pv.layer(i, l)
	}
	seen := map[string]bool{}
	for i, r := range p.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if r.ID == "" {
			pv.add(ErrMissingField, field+".id", "rule id is required")
		} else if seen[r.ID] {
			pv.add(ErrDuplicateName, field+".id", "duplicate rule id: %q", r.ID)
		}
		seen[r.ID] = true
		pv.rule(field, r)
	}
	return pv.errs
}

func (pv *projectValidator) layer(i int, l ir.Layer) {
	field := fmt.Sprintf("layers[%d]", i)

	// E105: duplicate layer id
	switch {
	case l.ID == "":
		pv.add(ErrMissingField, field+".id", "layer id is required")
	case pv.layers[l.ID]:
		pv.add(ErrDuplicateName, field+".id", "duplicate layer id: %q", l.ID)
	}
	pv.layers[l.ID] = true

	switch {
	case l.Behavior == "":
		pv.add(ErrMissingField, field+".behavior", "behavior is required")
	case pv.cfg.behaviors != nil && !slices.Contains(pv.cfg.behaviors, l.Behavior):
		pv.unresolved(ErrUnknownBehavior, field+".behavior",
			fmt.Sprintf("unknown behavior %q", l.Behavior), l.Behavior, pv.cfg.behaviors)
	}

	if !ir.ValidBlendModes[l.Blend] {
		pv.add(ErrInvalidEnum, field+".blend", "invalid blend mode %q", l.Blend)
	}
	if l.Opacity < 0 || l.Opacity > 1 {
		pv.add(ErrOutOfRange, field+".opacity", "opacity %g outside [0,1]", l.Opacity)
	}

	switch l.Target.Kind {
	case ir.TargetAll, "":
	case ir.TargetZone:
		if _, ok := pv.p.Zones[l.Target.Zone]; !ok {
			pv.unresolved(ErrUnknownTarget, field+".target.zone",
				fmt.Sprintf("unknown zone %q", l.Target.Zone), l.Target.Zone, sortedKeys(pv.p.Zones))
		}
	case ir.TargetGroup:
		if _, ok := pv.p.Groups[l.Target.Group]; !ok {
			pv.unresolved(ErrUnknownTarget, field+".target.group",
				fmt.Sprintf("unknown group %q", l.Target.Group), l.Target.Group, sortedKeys(pv.p.Groups))
		}
	default:
		pv.add(ErrInvalidEnum, field+".target.kind", "invalid target kind %q", l.Target.Kind)
	}

	for j, m := range l.Modulators {
		mfield := fmt.Sprintf("%s.modulators[%d]", field, j)
		if m.Param == "" {
			pv.add(ErrMissingField, mfield+".param", "modulator param is required")
		}
		switch m.Mode {
		case ir.ModAdd, ir.ModMul, ir.ModSet:
		default:
			pv.add(ErrInvalidEnum, mfield+".mode", "invalid modulator mode %q", m.Mode)
		}
		if m.Source != ir.SourceLFOSine {
			pv.signal(mfield+".source", m.Source)
		}
		if m.RateHz < 0 {
			pv.add(ErrOutOfRange, mfield+".rate_hz", "rate_hz must not be negative")
		}
	}
}

func (pv *projectValidator) rule(field string, r ir.Rule) {
	tr := r.Trigger
	switch tr.Kind {
	case ir.TriggerTick:
	case ir.TriggerRising:
		pv.requireSignal(field+".trigger.signal", tr.Signal)
		if tr.Op != "" && !ir.ValidCompareOps[tr.Op] {
			pv.add(ErrInvalidEnum, field+".trigger.op", "invalid comparison operator %q", tr.Op)
		}
	case ir.TriggerThreshold:
		pv.requireSignal(field+".trigger.signal", tr.Signal)
		if tr.Lower >= tr.Upper {
			pv.add(ErrOutOfRange, field+".trigger", "threshold lower %g must be below upper %g", tr.Lower, tr.Upper)
		}
	default:
		pv.add(ErrInvalidEnum, field+".trigger.kind", "invalid trigger kind %q", tr.Kind)
	}

	switch r.CondMode {
	case "", ir.CondAll, ir.CondAny:
	default:
		pv.add(ErrInvalidEnum, field+".cond_mode", "invalid cond_mode %q", r.CondMode)
	}
	for j, c := range r.Conditions {
		cfield := fmt.Sprintf("%s.conditions[%d]", field, j)
		pv.requireSignal(cfield+".signal", c.Signal)
		if !ir.ValidCompareOps[c.Op] {
			pv.add(ErrInvalidEnum, cfield+".op", "invalid comparison operator %q", c.Op)
		}
	}

	a := r.Action
	switch a.Value.Src {
	case ir.ExprConst:
	case ir.ExprSignal:
		pv.requireSignal(field+".action.value.signal", a.Value.Signal)
	case "":
		if a.Kind != ir.ActionFlipToggle {
			pv.add(ErrMissingField, field+".action.value", "action %s requires a value", a.Kind)
		}
	default:
		pv.add(ErrInvalidEnum, field+".action.value.src", "invalid expression source %q", a.Value.Src)
	}

	switch a.Kind {
	case ir.ActionSetVar, ir.ActionAddVar:
		if _, ok := pv.p.Variables.Number[a.Var]; !ok {
			pv.unresolved(ErrUnknownVariable, field+".action.var",
				fmt.Sprintf("unknown number variable %q", a.Var), a.Var, sortedKeys(pv.p.Variables.Number))
		}
	case ir.ActionFlipToggle, ir.ActionSetToggle:
		if _, ok := pv.p.Variables.Toggle[a.Var]; !ok {
			pv.unresolved(ErrUnknownVariable, field+".action.var",
				fmt.Sprintf("unknown toggle %q", a.Var), a.Var, sortedKeys(pv.p.Variables.Toggle))
		}
	case ir.ActionSetParam:
		if !pv.layers[a.Layer] {
			pv.unresolved(ErrUnknownLayer, field+".action.layer",
				fmt.Sprintf("unknown layer %q", a.Layer), a.Layer, sortedKeys(pv.layers))
		}
		if !export.IsExportSafe(a.Param) {
			pv.unresolved(ErrParamNotExportSafe, field+".action.param",
				fmt.Sprintf("parameter %q is not on the export-safe allow-list", a.Param), a.Param, export.AllowList())
		}
		if a.Precision < 0 {
			pv.add(ErrOutOfRange, field+".action.precision", "precision must not be negative")
		}
	default:
		pv.add(ErrInvalidEnum, field+".action.kind", "invalid action kind %q", a.Kind)
	}
}

func (pv *projectValidator) requireSignal(field, id string) {
	if id == "" {
		pv.add(ErrMissingField, field, "signal is required")
		return
	}
	pv.signal(field, id)
}

func (pv *projectValidator) signal(field, id string) {
	if !slices.Contains(pv.signals, id) {
		pv.unresolved(ErrUnknownSignal, field, fmt.Sprintf("unknown signal %q", id), id, pv.signals)
	}
}

// projectSignals lists the builtin catalogue plus the project's variables.
func projectSignals(p *ir.Project) []string {
	var ids []string
	for _, d := range signal.Builtins() {
		ids = append(ids, d.ID)
	}
	for n := range p.Variables.Number {
		ids = append(ids, signal.VarID(n))
	}
	for n := range p.Variables.Toggle {
		ids = append(ids, signal.ToggleID(n))
	}
	slices.Sort(ids)
	return ids
}

func validateTarget(t *ir.ExportTarget) []ValidationError {
	var errs []ValidationError

	// E120: id is required
	if strings.TrimSpace(t.ID) == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "target id is required", Code: ErrTargetIDEmpty})
	}

	// E121: memory class
	if t.MemoryClass.Rank() == 0 {
		errs = append(errs, ValidationError{
			Field:      "memory_class",
			Message:    fmt.Sprintf("invalid memory class %q", t.MemoryClass),
			Code:       ErrInvalidMemoryClass,
			Suggestion: ir.Suggest(string(t.MemoryClass), []string{"large", "medium", "small", "tiny"}),
		})
	}

	// E122: every op must be in op-set v1
	for i, op := range t.SupportedOpSet {
		if !slices.Contains(export.OpSetV1, op) {
			errs = append(errs, ValidationError{
				Field:      fmt.Sprintf("supported_op_set[%d]", i),
				Message:    fmt.Sprintf("unknown op %q", op),
				Code:       ErrUnknownOp,
				Suggestion: ir.Suggest(op, export.OpSetV1),
			})
		}
	}

	// E123: LED and RAM limits
	if t.MaxLedsHard < 0 || t.MaxLedsRecommended < 0 || t.RAMBytes < 0 {
		errs = append(errs, ValidationError{Field: "limits", Message: "limits must not be negative", Code: ErrInvalidLedLimits})
	}
	if t.MaxLedsHard > 0 && t.MaxLedsRecommended > t.MaxLedsHard {
		errs = append(errs, ValidationError{
			Field:   "max_leds_recommended",
			Message: fmt.Sprintf("recommended %d exceeds hard limit %d", t.MaxLedsRecommended, t.MaxLedsHard),
			Code:    ErrInvalidLedLimits,
		})
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

package export

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// Severity grades a parity issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one parity finding. Errors block export; warnings do not.
type Issue struct {
	Severity Severity     `json:"severity"`
	Code     ir.ErrorCode `json:"code,omitempty"`
	Subject  string       `json:"subject"`
	Message  string       `json:"message"`
}

func blocking(code ir.ErrorCode, subject, msg string) Issue {
	return Issue{Severity: SeverityError, Code: code, Subject: subject, Message: msg}
}

func warning(subject, msg string) Issue {
	return Issue{Severity: SeverityWarning, Subject: subject, Message: msg}
}

// ParamEncoding records how one parameter would be encoded on the target.
type ParamEncoding struct {
	Subject        string   `json:"subject"` // layer.param or rule:<id>
	Param          string   `json:"param"`
	Encoding       Encoding `json:"encoding,omitempty"`
	WorstCaseError float64  `json:"worst_case_error"`
	Tolerance      float64  `json:"tolerance"`
	OK             bool     `json:"ok"`
}

// LayerEligibility is the gate verdict for one enabled layer.
type LayerEligibility struct {
	LayerID string `json:"layer_id"`
	ir.EligibilityResult
}

// ParityReport is the outcome of validating a project against a target.
// TargetFingerprint and Catalog pin the target descriptor and the behavior
// metadata the verdict was reached against.
type ParityReport struct {
	Project           string             `json:"project"`
	TargetID          string             `json:"target_id"`
	TargetFingerprint string             `json:"target_fingerprint"`
	Catalog           string             `json:"catalog"`
	OpSetVersion      string             `json:"opset_version"`
	ToleranceVersion  string             `json:"tolerance_version"`
	OK                bool               `json:"ok"`
	Layers            []LayerEligibility `json:"layers"`
	Encodings         []ParamEncoding    `json:"encodings"`
	Budget            Estimate           `json:"budget"`
	Issues            []Issue            `json:"issues"`
}

// Errors returns the blocking issues.
func (r ParityReport) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the non-blocking issues.
func (r ParityReport) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r ParityReport) filter(s Severity) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == s {
			out = append(out, is)
		}
	}
	return out
}

// Err joins every blocking issue as an *ir.Error, or returns nil when the
// project is exportable. errors.Is matches each issue's code.
func (r ParityReport) Err() error {
	var errs []error
	for _, is := range r.Errors() {
		errs = append(errs, &ir.Error{Code: is.Code, Subject: is.Subject, Message: is.Message})
	}
	return errors.Join(errs...)
}

// Validator checks projects against targets. It holds no mutable state and
// is safe for concurrent use.
type Validator struct {
	catalog Catalog
	logger  *slog.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = l }
}

// NewValidator creates a validator over a behavior catalog.
func NewValidator(c Catalog, opts ...ValidatorOption) *Validator {
	v := &Validator{catalog: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks p against t. Checks run in a fixed order: layer
// eligibility, behavior parameter encodings, modulators, rule ops and
// encodings, signal availability, resource budget, layout. Every failure is
// recorded; validation never stops at the first.
func (v *Validator) Validate(p ir.Project, t ir.ExportTarget) ParityReport {
	rep := ParityReport{
		Project:           p.Name,
		TargetID:          t.ID,
		TargetFingerprint: ir.TargetFingerprint(t),
		OpSetVersion:      ir.OpSetVersion,
		ToleranceVersion:  ir.ToleranceTableVersion,
	}
	if t.Experimental {
		rep.Issues = append(rep.Issues, warning(t.ID, "target pack is experimental; export contract not fully verified"))
	}

	v.checkLayers(p, t, &rep)
	v.checkRules(p, t, &rep)
	v.checkSignals(p, t, &rep)

	est, issues := EstimateBudget(p, t)
	rep.Budget = est
	rep.Issues = append(rep.Issues, issues...)

	if p.Layout.Kind == ir.LayoutMatrix && !t.SupportsMatrix {
		rep.Issues = append(rep.Issues, blocking(ir.ErrCodeCapabilityMismatch, t.ID,
			"matrix layout on a target without matrix support"))
	}

	rep.Catalog = v.catalogFingerprint(p)
	rep.OK = len(rep.Errors()) == 0
	v.logger.Debug("parity validated",
		"project", p.Name,
		"target", t.ID,
		"ok", rep.OK,
		"errors", len(rep.Errors()),
		"warnings", len(rep.Warnings()))
	return rep
}

// catalogFingerprint covers every behavior the project's layers name,
// enabled or not, so a metadata change to any of them yields a new report.
func (v *Validator) catalogFingerprint(p ir.Project) string {
	fps := make([]string, 0, len(p.Layers))
	for _, l := range p.Layers {
		if caps, ok := v.catalog.Capabilities(l.Behavior); ok {
			fps = append(fps, ir.BehaviorFingerprint(caps))
		}
	}
	return ir.CatalogFingerprint(fps)
}

func (v *Validator) checkLayers(p ir.Project, t ir.ExportTarget, rep *ParityReport) {
	for _, l := range p.Layers {
		if !l.Enabled {
			continue
		}
		caps, ok := v.catalog.Capabilities(l.Behavior)
		if !ok {
			rep.Issues = append(rep.Issues, blocking(ir.ErrCodeUnresolvedReference, l.ID,
				fmt.Sprintf("unknown behavior %q", l.Behavior)))
			continue
		}
		el := Eligibility(caps, t)
		rep.Layers = append(rep.Layers, LayerEligibility{LayerID: l.ID, EligibilityResult: el})

		switch el.Status {
		case ir.StatusBlocked:
			rep.Issues = append(rep.Issues, blocking(ir.ErrCodeCapabilityMismatch, l.ID,
				fmt.Sprintf("behavior %s blocked: %s", l.Behavior, el.Reason)))
			continue
		case ir.StatusPreviewOnly:
			rep.Issues = append(rep.Issues, warning(l.ID,
				fmt.Sprintf("behavior %s excluded from export: %s", l.Behavior, el.Reason)))
			continue
		}

		for _, spec := range caps.Params {
			v.encode(l.ID+"."+spec.Name, spec, spec.Tolerance, t, rep)
		}
		for _, m := range l.Modulators {
			subject := l.ID + "." + m.Param
			if op := ModulatorOp(m.Source); !t.Supports(op) {
				rep.Issues = append(rep.Issues, blocking(ir.ErrCodeUnrepresentableEncoding, subject,
					fmt.Sprintf("modulator op %s not in target op-set", op)))
			}
			spec, ok := Param(m.Param)
			if !ok {
				rep.Issues = append(rep.Issues, blocking(ir.ErrCodeUnrepresentableEncoding, subject,
					"modulated parameter is not on the export-safe allow-list"))
				continue
			}
			if !slices.ContainsFunc(caps.Params, func(s ir.ParamSpec) bool { return s.Name == m.Param }) {
				v.encode(subject, spec, spec.Tolerance, t, rep)
			}
		}
	}
}

// encode records the encoding of spec on t and a ToleranceExceeded issue
// when its worst-case error is above tol.
func (v *Validator) encode(subject string, spec ir.ParamSpec, tol float64, t ir.ExportTarget, rep *ParityReport) {
	enc, werr, err := ChooseEncoding(t, spec)
	pe := ParamEncoding{Subject: subject, Param: spec.Name, Encoding: enc, WorstCaseError: werr, Tolerance: tol}
	switch {
	case err != nil:
		rep.Issues = append(rep.Issues, blocking(ir.ErrCodeUnrepresentableEncoding, subject, err.Error()))
	case werr > tol:
		rep.Issues = append(rep.Issues, blocking(ir.ErrCodeToleranceExceeded, subject,
			fmt.Sprintf("%s worst-case error %.6g exceeds tolerance %.6g", enc, werr, tol)))
	default:
		pe.OK = true
	}
	if math.IsInf(pe.WorstCaseError, 1) {
		pe.WorstCaseError = -1
	}
	rep.Encodings = append(rep.Encodings, pe)
}

func (v *Validator) checkRules(p ir.Project, t ir.ExportTarget, rep *ParityReport) {
	for _, r := range p.Rules {
		if !r.Enabled {
			continue
		}
		subject := "rule:" + r.ID
		need := func(op string) {
			if !t.Supports(op) {
				rep.Issues = append(rep.Issues, blocking(ir.ErrCodeUnrepresentableEncoding, subject,
					fmt.Sprintf("op %s not in target op-set", op)))
			}
		}

		need(TriggerOp(r.Trigger.Kind))
		if len(r.Conditions) > 0 {
			need(OpCondCmp)
			if r.CondMode == ir.CondAny {
				need(OpCondAny)
			}
		}
		need(ActionOp(r.Action.Kind))
		if r.Action.Value.Src != "" {
			need(ExprOp(r.Action.Value.Src))
		}

		if r.Action.Kind == ir.ActionSetParam {
			spec, ok := Param(r.Action.Param)
			if !ok {
				rep.Issues = append(rep.Issues, blocking(ir.ErrCodeUnrepresentableEncoding, subject,
					fmt.Sprintf("parameter %q is not on the export-safe allow-list", r.Action.Param)))
				continue
			}
			tol := spec.Tolerance
			if r.Action.Precision > 0 && r.Action.Precision < tol {
				tol = r.Action.Precision
			}
			v.encode(subject, spec, tol, t, rep)
		}
	}
}

// checkSignals reports every rule and exported-layer modulator signal the
// target cannot supply, once per (subject, signal). Runs after checkLayers.
func (v *Validator) checkSignals(p ir.Project, t ir.ExportTarget, rep *ParityReport) {
	if t.SupportsAudio {
		return
	}
	report := func(subject, sig string) {
		if signal.RequiresAudio(sig) {
			rep.Issues = append(rep.Issues, blocking(ir.ErrCodeCapabilityMismatch, subject,
				fmt.Sprintf("signal %s requires audio input; target has none", sig)))
		}
	}
	for _, r := range p.Rules {
		if !r.Enabled {
			continue
		}
		subject := "rule:" + r.ID
		seen := map[string]bool{}
		sigs := []string{r.Trigger.Signal, r.Action.Value.Signal}
		for _, c := range r.Conditions {
			sigs = append(sigs, c.Signal)
		}
		for _, s := range sigs {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			report(subject, s)
		}
	}
	exportable := map[string]bool{}
	for _, le := range rep.Layers {
		exportable[le.LayerID] = le.Status == ir.StatusExportable
	}
	for _, l := range p.Layers {
		if !l.Enabled || !exportable[l.ID] {
			continue
		}
		for _, m := range l.Modulators {
			report(l.ID+"."+m.Param, m.Source)
		}
	}
}

package compiler

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ledcore/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// schema compiles the embedded schema into ctx. Values can only be unified
// within one context, so the schema is compiled per call.
func schema(ctx *cue.Context, def string) (cue.Value, error) {
	s := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := s.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile embedded schema: %w", err)
	}
	return s.LookupPath(cue.ParsePath(def)), nil
}

// CompileProject parses a CUE value into a Project.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The value should be the project struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`project: { name: "desk", leds: 60, ... }`)
//	p, err := CompileProject(v.LookupPath(cue.ParsePath("project")))
//
// The result is structurally typed with defaults applied; run Validate for
// enumeration, range and reference checks.
func CompileProject(v cue.Value) (*ir.Project, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "project", Message: "project is required", Pos: v.Pos()}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def, err := schema(v.Context(), "#Project")
	if err != nil {
		return nil, err
	}
	u := def.Unify(v)

	for _, field := range []string{"name", "leds"} {
		if !u.LookupPath(cue.ParsePath(field)).IsConcrete() {
			return nil, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
		}
	}
	if err := requireThresholdBounds(u); err != nil {
		return nil, err
	}
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var p ir.Project
	if err := u.Decode(&p); err != nil {
		return nil, formatCUEError(err)
	}

	// Layers without an explicit order_index stack in declaration order.
	iter, err := u.LookupPath(cue.ParsePath("layers")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		if !iter.Value().LookupPath(cue.ParsePath("order_index")).IsConcrete() {
			p.Layers[i].OrderIndex = i
		}
	}
	return &p, nil
}

// CompileTarget parses a CUE value into an ExportTarget. The id is the
// value's struct label, e.g. target.esp32_fastled_msgeq7.
func CompileTarget(v cue.Value) (*ir.ExportTarget, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &ir.ExportTarget{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		t.ID = labels[len(labels)-1].String()
	}

	def, err := schema(v.Context(), "#ExportTarget")
	if err != nil {
		return nil, err
	}
	u := def.Unify(v)
	if !u.LookupPath(cue.ParsePath("memory_class")).IsConcrete() {
		return nil, &CompileError{
			Field:   "memory_class",
			Message: "memory_class is required",
			Pos:     v.Pos(),
		}
	}
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	if err := u.Decode(t); err != nil {
		return nil, formatCUEError(err)
	}
	// Decode never sets id: it is not a field.
	if len(labels) > 0 {
		t.ID = labels[len(labels)-1].String()
	}
	return t, nil
}

// CompileTargets parses every field of a target struct, in label order as
// written. The first failure stops the walk.
func CompileTargets(v cue.Value) ([]ir.ExportTarget, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ir.ExportTarget
	for iter.Next() {
		t, err := CompileTarget(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", iter.Selector(), err)
		}
		out = append(out, *t)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// requireThresholdBounds reports a threshold trigger that omits a bound.
// Both bounds are required; a default would make the band empty.
func requireThresholdBounds(u cue.Value) error {
	iter, err := u.LookupPath(cue.ParsePath("rules")).List()
	if err != nil {
		return nil
	}
	for i := 0; iter.Next(); i++ {
		tr := iter.Value().LookupPath(cue.ParsePath("trigger"))
		kind, err := tr.LookupPath(cue.ParsePath("kind")).String()
		if err != nil || kind != string(ir.TriggerThreshold) {
			continue
		}
		for _, bound := range []string{"upper", "lower"} {
			if !tr.LookupPath(cue.ParsePath(bound)).IsConcrete() {
				return &CompileError{
					Field:   fmt.Sprintf("rules[%d].trigger.%s", i, bound),
					Message: "threshold " + bound + " is required",
					Pos:     tr.Pos(),
				}
			}
		}
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

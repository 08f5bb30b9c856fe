package rules

import (
	"fmt"
	"slices"

	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// SignalSet resolves signal ids. *signal.Bus satisfies it.
type SignalSet interface {
	Describe(id string) (signal.Descriptor, bool)
	IDs() []string
}

// ParamAllowed reports whether a layer parameter may be targeted by SetParam.
type ParamAllowed func(param string) bool

// Validate checks every rule's references before the first tick.
// Returns the first error found, with the offending id as Subject.
func Validate(rules []ir.Rule, signals SignalSet, store *Store, allowed ParamAllowed) error {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return ir.NewError(ir.ErrCodeInvalidProject, "rule", "rule id is required")
		}
		if seen[r.ID] {
			return ir.NewError(ir.ErrCodeInvalidProject, r.ID, "duplicate rule id")
		}
		seen[r.ID] = true
		if err := validateRule(r, signals, store, allowed); err != nil {
			return fmt.Errorf("rule %q: %w", r.ID, err)
		}
	}
	return nil
}

func validateRule(r ir.Rule, signals SignalSet, store *Store, allowed ParamAllowed) error {
	tr := r.Trigger
	switch tr.Kind {
	case ir.TriggerTick:
	case ir.TriggerRising:
		if err := resolveSignal(tr.Signal, signals); err != nil {
			return err
		}
		if tr.Op != "" && !ir.ValidCompareOps[tr.Op] {
			return ir.NewError(ir.ErrCodeInvalidProject, string(tr.Op), "invalid comparison operator")
		}
	case ir.TriggerThreshold:
		if err := resolveSignal(tr.Signal, signals); err != nil {
			return err
		}
		if tr.Lower >= tr.Upper {
			return ir.NewError(ir.ErrCodeInvalidProject, r.ID, "threshold lower %g must be below upper %g", tr.Lower, tr.Upper)
		}
	default:
		return ir.NewError(ir.ErrCodeInvalidProject, string(tr.Kind), "unknown trigger kind")
	}

	switch r.CondMode {
	case "", ir.CondAll, ir.CondAny:
	default:
		return ir.NewError(ir.ErrCodeInvalidProject, string(r.CondMode), "unknown cond_mode")
	}
	for _, c := range r.Conditions {
		if err := resolveSignal(c.Signal, signals); err != nil {
			return err
		}
		if !ir.ValidCompareOps[c.Op] {
			return ir.NewError(ir.ErrCodeInvalidProject, string(c.Op), "invalid comparison operator")
		}
	}

	a := r.Action
	switch a.Value.Src {
	case ir.ExprConst:
	case ir.ExprSignal:
		if err := resolveSignal(a.Value.Signal, signals); err != nil {
			return err
		}
	case "":
		if a.Kind != ir.ActionFlipToggle {
			return ir.NewError(ir.ErrCodeInvalidProject, string(a.Kind), "action value is required")
		}
	default:
		return ir.NewError(ir.ErrCodeInvalidProject, string(a.Value.Src), "unknown expression source")
	}

	switch a.Kind {
	case ir.ActionSetVar, ir.ActionAddVar:
		if _, ok := store.numbers[a.Var]; !ok {
			return unresolved(signal.VarID(a.Var), "unknown variable", signal.VarID(a.Var), varIDs(store))
		}
	case ir.ActionFlipToggle, ir.ActionSetToggle:
		if _, ok := store.toggles[a.Var]; !ok {
			return unresolved(signal.ToggleID(a.Var), "unknown toggle", signal.ToggleID(a.Var), varIDs(store))
		}
	case ir.ActionSetParam:
		if !store.hasLayer(a.Layer) {
			return unresolved(a.Layer, "unknown layer", a.Layer, sortedKeys(store.params))
		}
		if allowed != nil && !allowed(a.Param) {
			return ir.NewError(ir.ErrCodeUnresolvedReference, a.Layer+"."+a.Param, "parameter is not on the export-safe allow-list")
		}
	default:
		return ir.NewError(ir.ErrCodeInvalidProject, string(a.Kind), "unknown action kind")
	}
	return nil
}

func resolveSignal(id string, signals SignalSet) error {
	if _, ok := signals.Describe(id); ok {
		return nil
	}
	return unresolved(id, "unknown signal", id, signals.IDs())
}

func unresolved(subject, msg, want string, candidates []string) *ir.Error {
	return &ir.Error{
		Code:       ir.ErrCodeUnresolvedReference,
		Subject:    subject,
		Message:    msg,
		Suggestion: ir.Suggest(want, candidates),
	}
}

func varIDs(s *Store) []string {
	ids := make([]string, 0, len(s.numbers)+len(s.toggles))
	for n := range s.numbers {
		ids = append(ids, signal.VarID(n))
	}
	for n := range s.toggles {
		ids = append(ids, signal.ToggleID(n))
	}
	slices.Sort(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

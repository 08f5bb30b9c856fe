// Package rules implements the Rule Evaluator.
//
// Rules are evaluated once per tick, in declaration order. Each rule owns an
// explicit State record (previous sample, active flag) that its trigger
// updates exactly once per pass.
//
// CRITICAL: trigger sampling of time, audio and frame signals uses the
// pre-tick snapshot. Variables and toggles are read from the live Store, so
// an action applied by an earlier rule is visible to every later rule in the
// same pass, but never to a trigger that has already been evaluated.
package rules

import (
	"log/slog"

	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// State is the private per-rule trigger memory.
type State struct {
	Prev   bool  `json:"prev"`   // rising: previous condition sample
	Active bool  `json:"active"` // threshold: hysteresis state
	Fired  int64 `json:"fired"`  // total firings since load
}

// Applied records one applied action for audit.
type Applied struct {
	RuleID  string        `json:"rule_id"`
	Kind    ir.ActionKind `json:"kind"`
	Subject string        `json:"subject"`
	Value   float64       `json:"value"`
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Frame     int64     `json:"frame"`
	Evaluated int       `json:"evaluated"` // enabled rules inspected
	Applied   []Applied `json:"applied"`
}

type instance struct {
	rule  ir.Rule
	state State
}

// Evaluator owns the rule instances and applies actions to the Store.
type Evaluator struct {
	rules  []*instance
	store  *Store
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// New validates rules against signals and the store and returns an
// evaluator. Unknown references fail here with UnresolvedReference, never
// during a tick.
func New(rules []ir.Rule, signals SignalSet, store *Store, allowed ParamAllowed, opts ...Option) (*Evaluator, error) {
	if err := Validate(rules, signals, store, allowed); err != nil {
		return nil, err
	}
	e := &Evaluator{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = make([]*instance, len(rules))
	for i, r := range rules {
		e.rules[i] = &instance{rule: r}
	}
	return e, nil
}

// Store returns the live store.
func (e *Evaluator) Store() *Store { return e.store }

// States returns a copy of every rule's state keyed by rule id.
func (e *Evaluator) States() map[string]State {
	out := make(map[string]State, len(e.rules))
	for _, in := range e.rules {
		out[in.rule.ID] = in.state
	}
	return out
}

// Evaluate runs one pass over all enabled rules in declaration order.
func (e *Evaluator) Evaluate(snap signal.Snapshot) Result {
	res := Result{Frame: snap.Frame()}
	for _, in := range e.rules {
		if !in.rule.Enabled {
			continue
		}
		res.Evaluated++

		fired := e.sampleTrigger(in, snap)
		if !fired || !e.conditionsPass(in.rule, snap) {
			continue
		}
		in.state.Fired++

		applied := e.apply(in.rule, snap)
		res.Applied = append(res.Applied, applied)
		e.logger.Debug("rule fired",
			"rule", in.rule.ID,
			"frame", snap.Frame(),
			"action", applied.Kind,
			"subject", applied.Subject,
			"value", applied.Value)
	}
	return res
}

// sampleTrigger evaluates the trigger and updates its state exactly once.
func (e *Evaluator) sampleTrigger(in *instance, snap signal.Snapshot) bool {
	tr := in.rule.Trigger
	switch tr.Kind {
	case ir.TriggerTick:
		return true

	case ir.TriggerRising:
		v := e.read(tr.Signal, snap)
		cond := v.Truthy()
		if tr.Op != "" {
			cond = tr.Op.Compare(v.Number(), tr.Value)
		}
		fired := cond && !in.state.Prev
		in.state.Prev = cond
		return fired

	case ir.TriggerThreshold:
		v := e.read(tr.Signal, snap).Number()
		if !in.state.Active && v >= tr.Upper {
			in.state.Active = true
			return true
		}
		if in.state.Active && v <= tr.Lower {
			in.state.Active = false
		}
		return false
	}
	return false
}

func (e *Evaluator) conditionsPass(r ir.Rule, snap signal.Snapshot) bool {
	if len(r.Conditions) == 0 {
		return true
	}
	anyMode := r.CondMode == ir.CondAny
	for _, c := range r.Conditions {
		ok := c.Op.Compare(e.read(c.Signal, snap).Number(), c.Value)
		if anyMode && ok {
			return true
		}
		if !anyMode && !ok {
			return false
		}
	}
	return !anyMode
}

func (e *Evaluator) apply(r ir.Rule, snap signal.Snapshot) Applied {
	a := r.Action
	v := e.Eval(a.Value, snap)
	out := Applied{RuleID: r.ID, Kind: a.Kind, Subject: a.Var, Value: v}

	switch a.Kind {
	case ir.ActionSetVar:
		e.store.numbers[a.Var] = v
	case ir.ActionAddVar:
		e.store.numbers[a.Var] += v
		out.Value = e.store.numbers[a.Var]
	case ir.ActionFlipToggle:
		next := !e.store.toggles[a.Var]
		e.store.toggles[a.Var] = next
		out.Value = boolNumber(next)
	case ir.ActionSetToggle:
		next := v > 0.5
		e.store.toggles[a.Var] = next
		out.Value = boolNumber(next)
	case ir.ActionSetParam:
		e.store.setParam(a.Layer, a.Param, v)
		out.Subject = a.Layer + "." + a.Param
	}
	return out
}

// Eval evaluates a value expression: src*scale + bias, or a 0/1 boolean if
// AsBool. A zero scale is treated as 1.
func (e *Evaluator) Eval(x ir.Expr, snap signal.Snapshot) float64 {
	var src float64
	if x.Src == ir.ExprSignal {
		src = e.read(x.Signal, snap).Number()
	} else {
		src = x.Const
	}
	scale := x.Scale
	if scale == 0 {
		scale = 1
	}
	v := src*scale + x.Bias
	if x.AsBool {
		return boolNumber(v > 0.5)
	}
	return v
}

// read returns a signal value: variables from the live store, everything
// else from the snapshot.
func (e *Evaluator) read(id string, snap signal.Snapshot) signal.Value {
	if v, ok := e.store.Lookup(id); ok {
		return v
	}
	v, _ := snap.Get(id)
	return v
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

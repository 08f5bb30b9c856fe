package rules

import (
	"maps"

	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// Store is the live user variable, toggle and layer-parameter store.
//
// It is created at project load and mutated only by the evaluator's action
// path (and ToggleFromUI between ticks). It is owned by the tick goroutine.
type Store struct {
	numbers map[string]float64
	toggles map[string]bool
	params  map[string]map[string]float64 // layer id -> param -> base value
}

// NewStore initializes the store from the project's declarations.
func NewStore(vars ir.Variables, layers []ir.Layer) *Store {
	s := &Store{
		numbers: maps.Clone(vars.Number),
		toggles: maps.Clone(vars.Toggle),
		params:  make(map[string]map[string]float64, len(layers)),
	}
	if s.numbers == nil {
		s.numbers = map[string]float64{}
	}
	if s.toggles == nil {
		s.toggles = map[string]bool{}
	}
	for _, l := range layers {
		p := maps.Clone(l.Params)
		if p == nil {
			p = map[string]float64{}
		}
		s.params[l.ID] = p
	}
	return s
}

// Register adds a signal for every variable and toggle to the bus and
// attaches the store as the bus's live variable reader.
func (s *Store) Register(bus *signal.Bus) error {
	for _, name := range sortedKeys(s.numbers) {
		if err := bus.Register(signal.VarID(name), signal.KindFloat, signal.SourceUserVar); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(s.toggles) {
		if err := bus.Register(signal.ToggleID(name), signal.KindBool, signal.SourceUserToggle); err != nil {
			return err
		}
	}
	bus.AttachVars(s)
	return nil
}

// Lookup implements signal.VarReader.
func (s *Store) Lookup(id string) (signal.Value, bool) {
	src, name, ok := signal.SplitVar(id)
	if !ok {
		return signal.Value{}, false
	}
	if src == signal.SourceUserVar {
		v, ok := s.numbers[name]
		return signal.Float(v), ok
	}
	v, ok := s.toggles[name]
	return signal.Bool(v), ok
}

// Number returns a number variable.
func (s *Store) Number(name string) (float64, bool) {
	v, ok := s.numbers[name]
	return v, ok
}

// Toggle returns a toggle.
func (s *Store) Toggle(name string) (bool, bool) {
	v, ok := s.toggles[name]
	return v, ok
}

// Param returns the base value of a layer parameter.
func (s *Store) Param(layerID, name string) (float64, bool) {
	v, ok := s.params[layerID][name]
	return v, ok
}

// LayerParams returns a copy of a layer's base parameter values.
func (s *Store) LayerParams(layerID string) map[string]float64 {
	return maps.Clone(s.params[layerID])
}

// ToggleFromUI sets a toggle from outside the rule pass. Callers must only
// invoke it between ticks.
func (s *Store) ToggleFromUI(name string, v bool) error {
	if _, ok := s.toggles[name]; !ok {
		return &ir.Error{Code: ir.ErrCodeUnresolvedReference, Subject: signal.ToggleID(name), Message: "unknown toggle"}
	}
	s.toggles[name] = v
	return nil
}

// Vars returns a copy of the current variables and toggles.
func (s *Store) Vars() ir.Variables {
	return ir.Variables{Number: maps.Clone(s.numbers), Toggle: maps.Clone(s.toggles)}
}

func (s *Store) hasLayer(id string) bool {
	_, ok := s.params[id]
	return ok
}

func (s *Store) setParam(layerID, name string, v float64) {
	s.params[layerID][name] = v
}

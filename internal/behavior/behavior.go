// Package behavior defines the Behavior Slot contract and the behavior
// registry.
//
// A behavior is an opaque plug-in with three operations: Init creates its
// private state from layer config, Tick advances the state, and Render turns
// the state into a pixel contribution for the layer's target. The compositor
// depends only on this contract.
//
// The registry is populated at startup and frozen before the first tick;
// lookups never observe a registry mid-mutation.
package behavior

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// State is a behavior's private state. Each layer owns its own State value;
// two layers never share one.
type State any

// Params are the effective parameter values for one tick, after rule writes
// and modulators.
type Params map[string]float64

// Get returns the parameter or def if absent.
func (p Params) Get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// TargetSpec describes the pixels a layer writes to.
type TargetSpec struct {
	// Indices are the frame positions covered, in ascending order.
	// Render must return exactly len(Indices) pixels.
	Indices []int
	// Size is the full frame length.
	Size   int
	Layout ir.Layout
	Params Params
}

// Behavior is the plug-in contract.
type Behavior interface {
	// Capabilities returns the export metadata. Must be constant.
	Capabilities() ir.BehaviorCapabilities
	Init(config map[string]any) (State, error)
	Tick(state State, dt float64, signals signal.Snapshot, params Params) (State, error)
	Render(state State, target TargetSpec) ([]ir.RGB, error)
}

// Registry maps behavior ids to implementations.
type Registry struct {
	mu     sync.RWMutex
	m      map[string]Behavior
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]Behavior)}
}

// Register adds a behavior. Fails on duplicate ids or after Freeze.
func (r *Registry) Register(b Behavior) error {
	id := b.Capabilities().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("behavior registry is frozen: cannot register %q", id)
	}
	if id == "" {
		return fmt.Errorf("behavior id is required")
	}
	if _, exists := r.m[id]; exists {
		return fmt.Errorf("behavior %q already registered", id)
	}
	r.m[id] = b
	return nil
}

// MustRegister is like Register but panics on error.
// Use only at startup with known-good builtins.
func (r *Registry) MustRegister(bs ...Behavior) *Registry {
	for _, b := range bs {
		if err := r.Register(b); err != nil {
			panic(err)
		}
	}
	return r
}

// Freeze forbids further registration.
func (r *Registry) Freeze() *Registry {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
	return r
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the behavior with id.
func (r *Registry) Lookup(id string) (Behavior, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.m[id]
	return b, ok
}

// Capabilities returns the metadata of id. It satisfies the export gate's
// catalog interface.
func (r *Registry) Capabilities(id string) (ir.BehaviorCapabilities, bool) {
	b, ok := r.Lookup(id)
	if !ok {
		return ir.BehaviorCapabilities{}, false
	}
	return b.Capabilities(), true
}

// IDs returns all registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.m))
	for id := range r.m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

package harness

import (
	"github.com/roach88/ledcore/internal/compositor"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/rules"
)

// TickTrace is one tick of a scenario run.
type TickTrace struct {
	Seq    int64           `json:"seq"`
	DT     float64         `json:"dt"`
	Hash   string          `json:"hash"`
	Fired  []rules.Applied `json:"fired,omitempty"`
	Faults []string        `json:"faults,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Trace holds every tick in order. Used for rule assertions and golden
	// comparison.
	Trace []TickTrace `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final state after the last tick.
	Vars    map[string]float64            `json:"vars"`
	Toggles map[string]bool               `json:"toggles"`
	Params  map[string]map[string]float64 `json:"params"`
	Pixels  []ir.RGB                      `json:"pixels"`
	Probes  []compositor.Probe            `json:"probes"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TickTrace{},
		Errors:  []string{},
		Vars:    map[string]float64{},
		Toggles: map[string]bool{},
		Params:  map[string]map[string]float64{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Last returns the final tick, or nil if nothing ran.
func (r *Result) Last() *TickTrace {
	if len(r.Trace) == 0 {
		return nil
	}
	return &r.Trace[len(r.Trace)-1]
}

// Tick returns the trace of frame seq.
func (r *Result) Tick(seq int64) (*TickTrace, bool) {
	for i := range r.Trace {
		if r.Trace[i].Seq == seq {
			return &r.Trace[i], true
		}
	}
	return nil, false
}

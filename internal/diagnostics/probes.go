// Package diagnostics exposes read-only probes of a running engine: per-tick
// rule firing counts, per-layer nonzero-pixel probes, and the most recent
// eligibility result and parity report.
//
// Probes are published as whole immutable snapshots through an atomic
// pointer. A reader on another goroutine sees either the previous snapshot
// or the next one, never a mix.
package diagnostics

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/ledcore/internal/compositor"
	"github.com/roach88/ledcore/internal/engine"
	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
)

// LayerStats accumulates one layer's probes across ticks.
type LayerStats struct {
	compositor.Probe
	Faults int64 `json:"faults"`
}

// Snapshot is one immutable view of the probes. Never modify a Snapshot
// returned by Probes.Snapshot.
type Snapshot struct {
	RunID      string       `json:"run_id"`
	Frame      int64        `json:"frame"`
	FrameHash  string       `json:"frame_hash"`
	Fired      int          `json:"fired"`       // rules applied in the last tick
	FiredTotal int64        `json:"fired_total"` // rules applied since the run began
	Layers     []LayerStats `json:"layers"`

	Eligibility *ir.EligibilityResult `json:"eligibility,omitempty"`
	Parity      *export.ParityReport  `json:"parity,omitempty"`
}

// Probes collects diagnostics. Observe is the engine observer; the Record
// methods may be called from any goroutine.
type Probes struct {
	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[Snapshot]
}

// NewProbes returns probes holding an empty snapshot.
func NewProbes() *Probes {
	p := &Probes{}
	p.cur.Store(&Snapshot{})
	return p
}

// Snapshot returns the current snapshot.
func (p *Probes) Snapshot() *Snapshot {
	return p.cur.Load()
}

// update publishes a modified copy of the current snapshot.
func (p *Probes) update(fn func(s *Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := *p.cur.Load()
	next.Layers = slices.Clone(next.Layers)
	fn(&next)
	p.cur.Store(&next)
}

// Observe records one tick. Pass it to engine.WithObserver.
func (p *Probes) Observe(res engine.TickResult) {
	p.update(func(s *Snapshot) {
		if s.RunID != res.RunID {
			s.FiredTotal = 0
			s.Layers = nil
		}
		s.RunID = res.RunID
		if res.Frame != nil {
			s.Frame = res.Frame.Seq
			s.FrameHash = res.Frame.Hash
		}
		s.Fired = len(res.Rules.Applied)
		s.FiredTotal += int64(s.Fired)

		prev := make(map[string]int64, len(s.Layers))
		for _, l := range s.Layers {
			prev[l.LayerID] = l.Faults
		}
		layers := make([]LayerStats, len(res.Report.Probes))
		for i, pr := range res.Report.Probes {
			layers[i] = LayerStats{Probe: pr, Faults: prev[pr.LayerID]}
			if pr.Fault != "" {
				layers[i].Faults++
			}
		}
		s.Layers = layers
	})
}

// RecordEligibility stores the last eligibility result.
func (p *Probes) RecordEligibility(r ir.EligibilityResult) {
	p.update(func(s *Snapshot) { s.Eligibility = &r })
}

// RecordParity stores the last parity report.
func (p *Probes) RecordParity(rep export.ParityReport) {
	p.update(func(s *Snapshot) { s.Parity = &rep })
}

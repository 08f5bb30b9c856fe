package testutil

import (
	"math/rand/v2"
	"sync"
)

// FixedRunID always returns the same run id. It satisfies
// engine.RunIDGenerator, so golden traces carry a stable run id.
type FixedRunID string

// Generate returns the id, or "test-run" when empty.
func (id FixedRunID) Generate() string {
	if id == "" {
		return "test-run"
	}
	return string(id)
}

// StepSequence yields a reproducible sequence of tick lengths: a base dt
// with seeded jitter, as a host loop with an uneven frame rate would
// produce. Reset rewinds it so the same sequence can drive a replay.
//
// Thread-safety: all methods are safe for concurrent use.
type StepSequence struct {
	mu     sync.Mutex
	base   float64
	jitter float64
	seed   uint64
	rng    *rand.Rand
}

// NewStepSequence creates a sequence around base, varying each step by up
// to ±jitter*base. A jitter of 0 yields a constant step.
func NewStepSequence(base, jitter float64, seed uint64) *StepSequence {
	s := &StepSequence{base: base, jitter: jitter, seed: seed}
	s.Reset()
	return s
}

// Next returns the next dt.
func (s *StepSequence) Next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jitter == 0 {
		return s.base
	}
	return s.base * (1 + s.jitter*(2*s.rng.Float64()-1))
}

// Take returns the next n steps.
func (s *StepSequence) Take(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Next()
	}
	return out
}

// Reset rewinds the sequence to its first step.
func (s *StepSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x5bd1e995))
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ledcore/internal/signal"
)

// DefaultSoakTicks bounds a soak run when the caller sets no tick limit.
const DefaultSoakTicks = 10_000

// Budget bounds a soak run from the outside. Ticks themselves are never
// interrupted; the budget is checked between ticks.
type Budget struct {
	MaxTicks  int64         // 0 means DefaultSoakTicks
	MaxWall   time.Duration // 0 means unbounded
	MaxFaults int64         // 0 means unbounded
	DT        float64       // logical seconds per tick
}

// FaultEnforcer counts isolated behavior faults against a limit.
//
// A faulting behavior never aborts a tick, but a soak run that keeps
// faulting is a failed run. The enforcer turns an accumulation of isolated
// faults into a terminating error.
type FaultEnforcer struct {
	maxFaults int64
	current   int64
}

// NewFaultEnforcer creates an enforcer. A limit of 0 disables it.
func NewFaultEnforcer(maxFaults int64) *FaultEnforcer {
	return &FaultEnforcer{maxFaults: maxFaults}
}

// Check adds n faults observed at frame and validates against the limit.
func (f *FaultEnforcer) Check(frame, n int64) error {
	f.current += n
	if f.maxFaults > 0 && f.current > f.maxFaults {
		return &FaultsExceededError{Frame: frame, Faults: f.current, Limit: f.maxFaults}
	}
	return nil
}

// Current returns the fault count.
func (f *FaultEnforcer) Current() int64 { return f.current }

// MaxFaults returns the limit.
func (f *FaultEnforcer) MaxFaults() int64 { return f.maxFaults }

// FaultsExceededError terminates a soak run that exceeded its fault budget.
type FaultsExceededError struct {
	Frame  int64
	Faults int64
	Limit  int64
}

// Error implements the error interface.
func (e *FaultsExceededError) Error() string {
	return fmt.Sprintf("soak exceeded fault budget at frame %d: %d faults > %d limit",
		e.Frame, e.Faults, e.Limit)
}

// IsFaultsExceededError reports whether err is a FaultsExceededError.
func IsFaultsExceededError(err error) bool {
	var fe *FaultsExceededError
	return errors.As(err, &fe)
}

// StopReason says why a soak run ended.
type StopReason string

const (
	StopTicks     StopReason = "ticks"
	StopWallClock StopReason = "wall_clock"
	StopFaults    StopReason = "faults"
	StopCancelled StopReason = "cancelled"
	StopFatal     StopReason = "fatal"
)

// SoakReport summarizes a soak run.
type SoakReport struct {
	RunID     string        `json:"run_id"`
	Ticks     int64         `json:"ticks"`
	Elapsed   time.Duration `json:"elapsed"`
	Reason    StopReason    `json:"reason"`
	Faults    int64         `json:"faults"`
	Firings   int64         `json:"firings"`
	FirstHash string        `json:"first_hash"`
	LastHash  string        `json:"last_hash"`
}

// Soak ticks eng as fast as possible with logical step b.DT until the tick
// or wall-clock budget is spent. It returns an error only when the run
// failed: a fatal tick error, an exhausted fault budget, or ctx cancellation.
func Soak(ctx context.Context, eng *Engine, b Budget) (SoakReport, error) {
	maxTicks := b.MaxTicks
	if maxTicks <= 0 {
		maxTicks = DefaultSoakTicks
	}
	dt := b.DT
	if dt <= 0 {
		dt = DefaultDT
	}
	faults := NewFaultEnforcer(b.MaxFaults)
	rep := SoakReport{RunID: eng.RunID()}

	start := time.Now()
	var deadline time.Time
	if b.MaxWall > 0 {
		deadline = start.Add(b.MaxWall)
	}

	eng.logger.Info("soak starting",
		"run", rep.RunID,
		"max_ticks", maxTicks,
		"max_wall", b.MaxWall,
		"max_faults", b.MaxFaults)

	finish := func(reason StopReason, err error) (SoakReport, error) {
		rep.Reason = reason
		rep.Elapsed = time.Since(start)
		rep.Faults = faults.Current()
		eng.logger.Info("soak finished",
			"run", rep.RunID,
			"reason", reason,
			"ticks", rep.Ticks,
			"faults", rep.Faults,
			"elapsed", rep.Elapsed)
		return rep, err
	}

	for rep.Ticks < maxTicks {
		if err := ctx.Err(); err != nil {
			return finish(StopCancelled, err)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return finish(StopWallClock, nil)
		}

		res, err := eng.step(dt, signal.Inputs{})
		if err != nil {
			return finish(StopFatal, err)
		}
		rep.Ticks++
		rep.Firings += int64(len(res.Rules.Applied))
		if rep.FirstHash == "" {
			rep.FirstHash = res.Frame.Hash
		}
		rep.LastHash = res.Frame.Hash

		if err := faults.Check(res.Frame.Seq, int64(len(res.Report.Faults))); err != nil {
			eng.logger.Error("soak fault budget exceeded",
				"run", rep.RunID,
				"frame", res.Frame.Seq,
				"faults", faults.Current(),
				"limit", faults.MaxFaults(),
				"error", err)
			return finish(StopFaults, err)
		}
	}
	return finish(StopTicks, nil)
}


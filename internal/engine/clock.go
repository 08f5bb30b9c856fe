package engine

import "sync/atomic"

// Clock is the logical frame clock.
//
// Every tick takes the next value from the clock; the value equals the
// engine.frame signal of the snapshot that tick produced. Time advances only
// by the dt handed to Tick, never by the wall clock, so a replay with the
// same inputs yields the same frame sequence.
//
// Thread-safety: Next is called only by the tick goroutine. Current may be
// read from any goroutine (diagnostics, soak supervisors).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock at frame 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at a given frame.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new frame number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last frame number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Package engine runs the deterministic LED tick pipeline.
//
// # Tick pipeline
//
// One tick is a fixed sequence executed on a single goroutine:
//
//	[queued host inputs] → [signal bus update] → [rule pass] → [compose layers] → [publish frame]
//
// The bus snapshot is taken once, before the rule pass. Rules sample time,
// audio and frame signals from that snapshot; variable and toggle writes land
// in the live store and are visible to later rules in the same pass. Layer
// parameters written by rules become the base values the compositor's
// modulators apply on top of.
//
// # Concurrency
//
// CRITICAL: the engine is single-writer. Tick, Apply, Run and Soak must be
// called from one goroutine. Other goroutines interact only through:
//   - Enqueue, which queues an Input applied before the next tick
//   - Latest, which returns the last published frame (atomic pointer swap,
//     verified against its hash)
//   - Frame, which reads the logical frame clock
//
// No tick is interrupted. Run stops between ticks on context cancellation or
// Stop; Soak checks its tick, wall-clock and fault budget between ticks.
//
// # Determinism
//
// Given the same project, seed, dt sequence and inputs, every tick produces
// a byte-identical frame. Time advances only by dt; the wall clock paces Run
// but never enters the pipeline.
package engine

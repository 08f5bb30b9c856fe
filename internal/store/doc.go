// Package store provides SQLite-backed durable storage for ledcore runs.
//
// The store implements an append-only log with:
//   - Runs: one record per engine run (project hash, seed, dt, versions)
//   - Frames: the hash of every published frame, keyed by (run, seq)
//   - Rule Firings: every rule firing, keyed by (run, frame, ordinal)
//   - Eligibility: per-release snapshots of the behavior × target matrix
//   - Parity Reports: one report per (project hash, target, tolerance table)
//
// # Critical Patterns
//
// Logical identity and time:
//   - All ordering uses seq / frame INTEGER (logical clock), NEVER timestamps
//   - Two runs of the same project, seed and dt sequence must store
//     identical frame hashes; FirstDivergence finds where they do not
//
// Deterministic query results:
//   - Every query has an ORDER BY over keys compared with COLLATE BINARY
//
// Idempotent writes:
//   - Natural keys with ON CONFLICT DO NOTHING, so re-recording a run or a
//     snapshot is a no-op
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

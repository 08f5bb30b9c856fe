// Package ir provides the canonical data model for ledcore.
//
// This package contains type definitions, the error taxonomy and the
// canonical-JSON / hashing primitives. All other internal packages import ir;
// ir imports nothing internal. This keeps IR the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - Project, Layer and Rule values are static declarations. Live runtime
//     state (variables, toggles, behavior state, trigger memory) is owned by
//     the rules and compositor packages, never stored here.
//   - Canonical JSON carries NO float values. Floats that take part in a
//     content hash are carried as their shortest round-trip decimal string
//     (see Float), so the same value always hashes identically.
//   - All JSON tags use snake_case.
//   - Frame order is a logical counter (engine.frame), never wall-clock time.
package ir

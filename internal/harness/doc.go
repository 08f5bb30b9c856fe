// Package harness runs scripted tick scenarios against a project.
//
// A scenario feeds host inputs (UI toggles, layer enables and reorders,
// fixed audio spectra) into an engine, advances it tick by tick, and checks
// assertions on the recorded trace and the final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	project: ../projects/desk.cue   # or project_source: inline CUE
//	seed: 7                         # optional, overrides the project seed
//	dt: 0.016666666666666666        # optional, default 1/60
//	jitter: 0.25                    # optional, vary tick lengths by ±25%
//	steps:
//	  - ticks: 3
//	  - ticks: 1
//	    toggles: { armed: true }
//	    layers: { accent: false }
//	    order: { accent: 0 }
//	    audio: { energy: 0.8, mono: [0.1, 0.9] }
//	assertions:
//	  - type: rule_fired
//	    rule: arm
//	    frames: [4]
//	  - type: var
//	    name: hits
//	    value: 1
//
// Unknown fields are rejected, so typos fail loudly.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - var, toggle, param: final variable, toggle and layer parameter values
//   - rule_fired: the frames a rule fired in, or how many
//   - firing_order: the exact rules applied at one frame, in order
//   - pixel: a final pixel, with tolerance
//   - layer_dark: a layer contributed nothing to the last frame
//   - no_faults: no behavior faulted
//   - deterministic: a replay of the scenario yields identical frame hashes
//
// # Deterministic Testing
//
// Every run uses a fixed run id, a tick-length sequence seeded by the
// project seed, and an in-memory SQLite store private to the run. The store
// records each frame hash, which is how the deterministic assertion finds
// the first frame a replay diverges at.
//
// Traces serialize to canonical JSON for golden comparison with goldie:
//
//	result, err := harness.RunWithGolden(t, scenario)
package harness

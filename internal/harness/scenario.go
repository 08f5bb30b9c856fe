package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a tick scenario: a project, a sequence of steps that
// feed host inputs and advance the engine, and assertions on the result.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Project is the path to the project CUE file, relative to the
	// scenario file. Exactly one of Project and ProjectSource is set.
	Project string `yaml:"project,omitempty"`

	// ProjectSource is inline CUE holding a `project` struct.
	ProjectSource string `yaml:"project_source,omitempty"`

	// Seed overrides the project's seed.
	Seed *uint64 `yaml:"seed,omitempty"`

	// DT is the default tick length. Zero means engine.DefaultDT.
	DT float64 `yaml:"dt,omitempty"`

	// Jitter varies each default-length tick by up to ±Jitter*DT, seeded
	// by the project seed, so uneven host frame rates can be replayed.
	Jitter float64 `yaml:"jitter,omitempty"`

	// RunID is a fixed run id for deterministic golden traces.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step applies host inputs, then advances the engine Ticks times.
type Step struct {
	// Ticks is the number of ticks to run. Zero applies inputs only.
	Ticks int `yaml:"ticks"`

	// DT overrides the scenario tick length for this step.
	DT float64 `yaml:"dt,omitempty"`

	// Toggles are set from the UI before the ticks.
	Toggles map[string]bool `yaml:"toggles,omitempty"`

	// Layers enables or disables layers before the ticks.
	Layers map[string]bool `yaml:"layers,omitempty"`

	// Order moves layers to a new order_index before the ticks.
	Order map[string]int `yaml:"order,omitempty"`

	// Audio replaces the simulated spectrum for every tick of the step.
	Audio *AudioStep `yaml:"audio,omitempty"`
}

// AudioStep is a fixed spectrum. Mono bands are copied to both channels;
// missing bands are zero. Energy defaults to the mean of Mono.
type AudioStep struct {
	Energy *float64  `yaml:"energy,omitempty"`
	Mono   []float64 `yaml:"mono,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	//   - "var":           number variable Name equals Value
	//   - "toggle":        toggle Name equals Value
	//   - "param":         base value of Layer.Param equals Value
	//   - "rule_fired":    Rule fired Count times, or exactly at Frames
	//   - "firing_order":  the rules applied at Frame were exactly Rules
	//   - "pixel":         final pixel Index equals RGB
	//   - "layer_dark":    Layer contributed no nonzero pixel in the last tick
	//   - "no_faults":     no behavior faulted
	//   - "deterministic": a replay produces identical frame hashes
	Type string `yaml:"type"`

	Name  string `yaml:"name,omitempty"`
	Layer string `yaml:"layer,omitempty"`
	Param string `yaml:"param,omitempty"`
	Rule  string `yaml:"rule,omitempty"`

	// Value is a number (var, param) or a bool (toggle).
	Value any `yaml:"value,omitempty"`

	Count  *int    `yaml:"count,omitempty"`
	Frames []int64 `yaml:"frames,omitempty"`

	Frame int64    `yaml:"frame,omitempty"`
	Rules []string `yaml:"rules,omitempty"`

	Index int       `yaml:"index,omitempty"`
	RGB   []float64 `yaml:"rgb,omitempty"`

	// Tolerance is the allowed absolute error for numeric comparisons.
	Tolerance float64 `yaml:"tolerance,omitempty"`
}

// Assertion type constants.
const (
	AssertVar           = "var"
	AssertToggle        = "toggle"
	AssertParam         = "param"
	AssertRuleFired     = "rule_fired"
	AssertFiringOrder   = "firing_order"
	AssertPixel         = "pixel"
	AssertLayerDark     = "layer_dark"
	AssertNoFaults      = "no_faults"
	AssertDeterministic = "deterministic"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative project path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if sc.Project != "" && !filepath.IsAbs(sc.Project) {
		sc.Project = filepath.Join(filepath.Dir(path), sc.Project)
	}
	return sc, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and assertion structure.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if (s.Project == "") == (s.ProjectSource == "") {
		return fmt.Errorf("exactly one of project and project_source is required")
	}
	if s.DT < 0 {
		return fmt.Errorf("dt must be non-negative")
	}
	if s.Jitter < 0 || s.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1)")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one step")
	}
	for i, step := range s.Steps {
		if step.Ticks < 0 {
			return fmt.Errorf("steps[%d]: ticks must be non-negative", i)
		}
		if step.DT < 0 {
			return fmt.Errorf("steps[%d]: dt must be non-negative", i)
		}
		if step.Audio != nil && len(step.Audio.Mono) > 7 {
			return fmt.Errorf("steps[%d]: audio has %d bands, max 7", i, len(step.Audio.Mono))
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion checks that an assertion has the fields its type needs.
func validateAssertion(a Assertion, index int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertVar:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for var", index)
		}
		if _, ok := number(a.Value); !ok {
			return fmt.Errorf("assertions[%d]: numeric value is required for var", index)
		}
	case AssertToggle:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for toggle", index)
		}
		if _, ok := a.Value.(bool); !ok {
			return fmt.Errorf("assertions[%d]: boolean value is required for toggle", index)
		}
	case AssertParam:
		if a.Layer == "" || a.Param == "" {
			return fmt.Errorf("assertions[%d]: layer and param are required for param", index)
		}
		if _, ok := number(a.Value); !ok {
			return fmt.Errorf("assertions[%d]: numeric value is required for param", index)
		}
	case AssertRuleFired:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for rule_fired", index)
		}
		if a.Count != nil && *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for rule_fired", index)
		}
	case AssertFiringOrder:
		if a.Frame <= 0 {
			return fmt.Errorf("assertions[%d]: frame is required for firing_order", index)
		}
	case AssertPixel:
		if len(a.RGB) != 3 {
			return fmt.Errorf("assertions[%d]: rgb must have 3 channels for pixel", index)
		}
		if a.Index < 0 {
			return fmt.Errorf("assertions[%d]: index must be non-negative for pixel", index)
		}
	case AssertLayerDark:
		if a.Layer == "" {
			return fmt.Errorf("assertions[%d]: layer is required for layer_dark", index)
		}
	case AssertNoFaults, AssertDeterministic:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// number converts a YAML-decoded scalar to float64.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

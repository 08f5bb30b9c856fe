package signal

import (
	"fmt"
	"strings"
)

// Builtin signal ids.
const (
	TimeT       = "time.t"
	TimeDT      = "time.dt"
	EngineFrame = "engine.frame"
	AudioEnergy = "audio.energy"

	varNumberPrefix = "vars.number."
	varTogglePrefix = "vars.toggle."
)

// VarID returns the signal id of a number variable.
func VarID(name string) string { return varNumberPrefix + name }

// ToggleID returns the signal id of a toggle.
func ToggleID(name string) string { return varTogglePrefix + name }

// MonoID returns the id of mono band i.
func MonoID(i int) string { return fmt.Sprintf("audio.mono%d", i) }

// LeftID returns the id of left band i.
func LeftID(i int) string { return fmt.Sprintf("audio.L%d", i) }

// RightID returns the id of right band i.
func RightID(i int) string { return fmt.Sprintf("audio.R%d", i) }

// Descriptor describes a registered signal.
type Descriptor struct {
	ID     string
	Kind   Kind
	Source Source
}

// Builtins returns the descriptors every bus registers at construction,
// in registration order.
func Builtins() []Descriptor {
	ds := []Descriptor{
		{TimeT, KindFloat, SourceTime},
		{TimeDT, KindFloat, SourceTime},
		{EngineFrame, KindInt, SourceFrame},
		{AudioEnergy, KindFloat, SourceAudio},
	}
	for i := 0; i < Bands; i++ {
		ds = append(ds, Descriptor{MonoID(i), KindFloat, SourceAudio})
	}
	for i := 0; i < Bands; i++ {
		ds = append(ds, Descriptor{LeftID(i), KindFloat, SourceAudio})
	}
	for i := 0; i < Bands; i++ {
		ds = append(ds, Descriptor{RightID(i), KindFloat, SourceAudio})
	}
	return ds
}

// RequiresAudio reports whether firmware needs an audio backend to supply id.
func RequiresAudio(id string) bool {
	return strings.HasPrefix(id, "audio.")
}

// SplitVar parses a variable signal id into its source and name.
// ok is false for non-variable ids.
func SplitVar(id string) (src Source, name string, ok bool) {
	switch {
	case strings.HasPrefix(id, varNumberPrefix):
		return SourceUserVar, strings.TrimPrefix(id, varNumberPrefix), true
	case strings.HasPrefix(id, varTogglePrefix):
		return SourceUserToggle, strings.TrimPrefix(id, varTogglePrefix), true
	default:
		return "", "", false
	}
}

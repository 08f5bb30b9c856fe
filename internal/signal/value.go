package signal

import "fmt"

// Kind is the value type of a signal.
type Kind string

const (
	KindFloat Kind = "float"
	KindInt   Kind = "int"
	KindBool  Kind = "bool"
)

// Source is where a signal's value comes from.
type Source string

const (
	SourceTime       Source = "time"
	SourceAudio      Source = "audio"
	SourceFrame      Source = "frame"
	SourceUserVar    Source = "user_var"
	SourceUserToggle Source = "user_toggle"
)

// Live reports whether the source is read from the live variable store
// rather than the pre-tick snapshot.
func (s Source) Live() bool {
	return s == SourceUserVar || s == SourceUserToggle
}

// Value is a tagged signal value. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind
	F    float64
	I    int64
	B    bool
}

// Float returns a float value.
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }

// Int returns an int value.
func Int(i int64) Value { return Value{Kind: KindInt, I: i} }

// Bool returns a bool value.
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }

// Number returns the value as float64. Bools map to 0 or 1.
func (v Value) Number() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I)
	case KindBool:
		if v.B {
			return 1
		}
		return 0
	default:
		return v.F
	}
}

// Truthy reports whether the value is true (bool) or nonzero (numeric).
func (v Value) Truthy() bool {
	if v.Kind == KindBool {
		return v.B
	}
	return v.Number() != 0
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindBool:
		return fmt.Sprintf("%t", v.B)
	default:
		return fmt.Sprintf("%g", v.F)
	}
}

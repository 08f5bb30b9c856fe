// Package testutil provides deterministic fixtures shared by package tests:
// small projects, fixed run ids and reproducible dt sequences.
package testutil

import "github.com/roach88/ledcore/internal/ir"

// Layer returns an enabled, fully opaque Over layer targeting all LEDs.
func Layer(id, behavior string, order int) ir.Layer {
	return ir.Layer{
		ID:         id,
		OrderIndex: order,
		Enabled:    true,
		Opacity:    1,
		Blend:      ir.BlendOver,
		Target:     ir.TargetSpec{Kind: ir.TargetAll},
		Behavior:   behavior,
	}
}

// TickRule returns an enabled rule firing on every tick.
func TickRule(id string, action ir.Action) ir.Rule {
	return ir.Rule{ID: id, Enabled: true, Trigger: ir.Trigger{Kind: ir.TriggerTick}, Action: action}
}

// StripProject is a 30-LED strip with a rainbow base, a chase overlay on a
// zone and an audio pulse on a group. One rule drives the chase hue from a
// variable; a threshold rule toggles the pulse layer's brightness.
func StripProject() ir.Project {
	base := Layer("base", "rainbow", 0)
	base.Params = map[string]float64{"speed": 0.5, "density": 1, "brightness": 0.6}

	chase := Layer("chase", "chase", 1)
	chase.Blend = ir.BlendAdd
	chase.Opacity = 0.8
	chase.Target = ir.TargetSpec{Kind: ir.TargetZone, Zone: "front"}
	chase.Params = map[string]float64{"speed": 4, "width": 3, "hue": 0.1}
	chase.Modulators = []ir.Modulator{
		{Param: "brightness", Source: ir.SourceLFOSine, Mode: ir.ModMul, Amount: 0.5, RateHz: 0.25},
	}

	pulse := Layer("pulse", "pulse", 2)
	pulse.Blend = ir.BlendScreen
	pulse.Target = ir.TargetSpec{Kind: ir.TargetGroup, Group: "ends"}

	return ir.Project{
		Name:   "strip-demo",
		Leds:   30,
		Layout: ir.Layout{Kind: ir.LayoutStrip},
		Seed:   7,
		Variables: ir.Variables{
			Number: map[string]float64{"hue": 0},
			Toggle: map[string]bool{"loud": false},
		},
		Zones:  map[string]ir.Zone{"front": {Start: 10, End: 20}},
		Groups: map[string][]int{"ends": {0, 1, 2, 27, 28, 29}},
		Layers: []ir.Layer{base, chase, pulse},
		Rules: []ir.Rule{
			TickRule("drift", ir.Action{Kind: ir.ActionAddVar, Var: "hue", Value: ir.Const(0.01)}),
			TickRule("chase_hue", ir.Action{
				Kind:  ir.ActionSetParam,
				Layer: "chase",
				Param: "hue",
				Value: ir.Ref("vars.number.hue"),
			}),
			{
				ID:      "loud",
				Enabled: true,
				Trigger: ir.Trigger{Kind: ir.TriggerThreshold, Signal: "audio.energy", Upper: 0.6, Lower: 0.4},
				Action:  ir.Action{Kind: ir.ActionFlipToggle, Var: "loud"},
			},
		},
	}
}

// OrderingProject is the two-rule ordering fixture: A adds 1 to x every
// tick, B sets flag on the rising edge of x == 1.
func OrderingProject() ir.Project {
	return ir.Project{
		Name:   "ordering",
		Leds:   4,
		Layout: ir.Layout{Kind: ir.LayoutStrip},
		Variables: ir.Variables{
			Number: map[string]float64{"x": 0},
			Toggle: map[string]bool{"flag": false},
		},
		Layers: []ir.Layer{Layer("base", "solid", 0)},
		Rules: []ir.Rule{
			TickRule("A", ir.Action{Kind: ir.ActionAddVar, Var: "x", Value: ir.Const(1)}),
			{
				ID:      "B",
				Enabled: true,
				Trigger: ir.Trigger{Kind: ir.TriggerRising, Signal: "vars.number.x", Op: ir.OpEQ, Value: 1},
				Action:  ir.Action{Kind: ir.ActionSetToggle, Var: "flag", Value: ir.Const(1)},
			},
		},
	}
}

// MatrixProject is a 16x8 matrix running plasma under a sparkle overlay.
func MatrixProject() ir.Project {
	sparkle := Layer("sparkle", "sparkle", 1)
	sparkle.Blend = ir.BlendMax
	sparkle.Opacity = 0.5
	return ir.Project{
		Name:   "matrix-demo",
		Leds:   128,
		Layout: ir.Layout{Kind: ir.LayoutMatrix, Width: 16, Height: 8},
		Seed:   42,
		Layers: []ir.Layer{Layer("plasma", "plasma", 0), sparkle},
	}
}

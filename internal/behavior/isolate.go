package behavior

import (
	"fmt"

	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

// SafeTick calls b.Tick, converting panics and errors into a BehaviorFault.
// On fault the previous state is returned unchanged.
func SafeTick(b Behavior, state State, dt float64, signals signal.Snapshot, params Params) (next State, err error) {
	id := b.Capabilities().ID
	defer func() {
		if r := recover(); r != nil {
			next = state
			err = fault(id, "tick panicked: %v", r)
		}
	}()
	next, err = b.Tick(state, dt, signals, params)
	if err != nil {
		return state, fault(id, "tick: %v", err)
	}
	return next, nil
}

// SafeRender calls b.Render, converting panics, errors and wrong-length
// contributions into a BehaviorFault.
func SafeRender(b Behavior, state State, target TargetSpec) (px []ir.RGB, err error) {
	id := b.Capabilities().ID
	defer func() {
		if r := recover(); r != nil {
			px = nil
			err = fault(id, "render panicked: %v", r)
		}
	}()
	px, err = b.Render(state, target)
	if err != nil {
		return nil, fault(id, "render: %v", err)
	}
	if len(px) != len(target.Indices) {
		return nil, fault(id, "render returned %d pixels for %d targets", len(px), len(target.Indices))
	}
	return px, nil
}

// SafeInit calls b.Init, converting panics into a BehaviorFault.
func SafeInit(b Behavior, config map[string]any) (state State, err error) {
	id := b.Capabilities().ID
	defer func() {
		if r := recover(); r != nil {
			err = fault(id, "init panicked: %v", r)
		}
	}()
	state, err = b.Init(config)
	if err != nil {
		return nil, fault(id, "init: %v", err)
	}
	return state, nil
}

func fault(id, format string, args ...any) error {
	return &ir.Error{Code: ir.ErrCodeBehaviorFault, Subject: id, Message: fmt.Sprintf(format, args...)}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/testutil"
)

func TestFaultEnforcer(t *testing.T) {
	f := NewFaultEnforcer(3)
	assert.Equal(t, int64(3), f.MaxFaults())

	require.NoError(t, f.Check(1, 2))
	require.NoError(t, f.Check(2, 1))
	assert.Equal(t, int64(3), f.Current())

	err := f.Check(3, 1)
	require.Error(t, err)
	assert.True(t, IsFaultsExceededError(err))
	assert.True(t, IsBudgetError(err))
	assert.Contains(t, err.Error(), "at frame 3: 4 faults > 3 limit")
}

func TestFaultEnforcer_Unlimited(t *testing.T) {
	f := NewFaultEnforcer(0)
	for i := int64(1); i <= 100; i++ {
		require.NoError(t, f.Check(i, 5))
	}
	assert.Equal(t, int64(500), f.Current())
}

func TestIsBudgetError_Wrapped(t *testing.T) {
	re := &RuntimeError{Code: ErrCodeBudgetExceeded, Message: "x"}
	assert.True(t, IsBudgetError(fmt.Errorf("soak: %w", re)))
	assert.False(t, IsBudgetError(errors.New("other")))
	assert.False(t, IsBudgetError(&RuntimeError{Code: ErrCodeInvalidStep}))
}

func TestRuntimeError_Format(t *testing.T) {
	tests := []struct {
		err  *RuntimeError
		want string
	}{
		{&RuntimeError{Code: ErrCodeInvalidStep, Message: "bad"}, "INVALID_STEP: bad"},
		{&RuntimeError{Code: ErrCodeInvalidStep, Message: "bad", RunID: "r"}, "INVALID_STEP: bad (run=r)"},
		{&RuntimeError{Code: ErrCodeInvalidStep, Message: "bad", RunID: "r", Frame: 9}, "INVALID_STEP: bad (run=r, frame=9)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestSoak_TickBudget(t *testing.T) {
	e := newEngine(t, testutil.StripProject())

	rep, err := Soak(context.Background(), e, Budget{MaxTicks: 300, DT: DefaultDT})
	require.NoError(t, err)
	assert.Equal(t, StopTicks, rep.Reason)
	assert.Equal(t, int64(300), rep.Ticks)
	assert.Equal(t, int64(300), e.Frame())
	assert.Equal(t, "run-test", rep.RunID)
	assert.Zero(t, rep.Faults)
	assert.GreaterOrEqual(t, rep.Firings, int64(600), "two tick rules fire every frame")
	assert.NotEmpty(t, rep.FirstHash)
	assert.NotEqual(t, rep.FirstHash, rep.LastHash)
}

func TestSoak_Reproducible(t *testing.T) {
	a, err := Soak(context.Background(), newEngine(t, testutil.MatrixProject()), Budget{MaxTicks: 120})
	require.NoError(t, err)
	b, err := Soak(context.Background(), newEngine(t, testutil.MatrixProject()), Budget{MaxTicks: 120})
	require.NoError(t, err)
	assert.Equal(t, a.LastHash, b.LastHash)
}

func TestSoak_FaultBudget(t *testing.T) {
	p := testutil.StripProject()
	p.Layers = append(p.Layers, testutil.Layer("bad", "broken", 9))
	e := newEngine(t, p)

	rep, err := Soak(context.Background(), e, Budget{MaxTicks: 100, MaxFaults: 5})
	require.Error(t, err)
	assert.True(t, IsFaultsExceededError(err))
	assert.Equal(t, StopFaults, rep.Reason)
	assert.Equal(t, int64(6), rep.Ticks, "one fault per tick, sixth exceeds")
	assert.Equal(t, int64(6), rep.Faults)
}

func TestSoak_Cancelled(t *testing.T) {
	e := newEngine(t, testutil.StripProject())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := Soak(ctx, e, Budget{MaxTicks: 100})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCancelled, rep.Reason)
	assert.Zero(t, rep.Ticks)
}

func TestSoak_WallClock(t *testing.T) {
	e := newEngine(t, testutil.MatrixProject())

	rep, err := Soak(context.Background(), e, Budget{MaxTicks: 1 << 40, MaxWall: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, StopWallClock, rep.Reason)
	assert.Positive(t, rep.Ticks)
}

func TestSoak_DefaultTicks(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the default tick budget")
	}
	e := newEngine(t, testutil.OrderingProject())
	rep, err := Soak(context.Background(), e, Budget{})
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultSoakTicks), rep.Ticks)
}

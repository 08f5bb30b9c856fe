package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/behavior"
	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/signal"
)

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestRegistryHoldsAllBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Frozen())
	assert.Equal(t, []string{"chase", "plasma", "pulse", "rainbow", "screen_mirror", "solid", "sparkle"}, r.IDs())
}

func TestParamsAreOnAllowList(t *testing.T) {
	for _, b := range All() {
		for _, p := range b.Capabilities().Params {
			spec, ok := export.Param(p.Name)
			require.True(t, ok, "%s exposes %s", b.Capabilities().ID, p.Name)
			assert.Equal(t, spec, p)
		}
	}
}

func TestBuiltinsRenderDeterministically(t *testing.T) {
	bus := signal.NewBus(signal.WithSeed(3))
	var snaps []signal.Snapshot
	for i := 0; i < 10; i++ {
		snaps = append(snaps, bus.Update(1.0/30, signal.Inputs{}))
	}

	for _, b := range All() {
		t.Run(b.Capabilities().ID, func(t *testing.T) {
			run := func() [][]ir.RGB {
				st, err := b.Init(map[string]any{})
				require.NoError(t, err)
				target := behavior.TargetSpec{
					Indices: indices(16),
					Size:    16,
					Layout:  ir.Layout{Kind: ir.LayoutMatrix, Width: 4, Height: 4},
				}
				var frames [][]ir.RGB
				for _, s := range snaps {
					st, err = b.Tick(st, 1.0/30, s, nil)
					require.NoError(t, err)
					px, err := b.Render(st, target)
					require.NoError(t, err)
					require.Len(t, px, 16)
					frames = append(frames, px)
				}
				return frames
			}
			assert.Equal(t, run(), run())
		})
	}
}

func TestSolidColorAndBrightness(t *testing.T) {
	st, err := Solid{}.Init(map[string]any{"color": []any{1.0, 0.5, 0.0}})
	require.NoError(t, err)

	px, err := Solid{}.Render(st, behavior.TargetSpec{Indices: []int{3, 4}, Params: behavior.Params{"brightness": 0.5}})
	require.NoError(t, err)
	assert.Equal(t, []ir.RGB{{R: 0.5, G: 0.25}, {R: 0.5, G: 0.25}}, px)

	_, err = Solid{}.Init(map[string]any{"color": "red"})
	require.Error(t, err)
}

func TestPulseFollowsEnergy(t *testing.T) {
	bus := signal.NewBus()
	loud := bus.Update(0.1, signal.Inputs{Audio: &signal.AudioFrame{Energy: 1}})

	st, _ := Pulse{}.Init(nil)
	st, err := Pulse{}.Tick(st, 0.1, loud, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, st.(pulseState).Level, 1e-12, "dt*10 >= 1 snaps to target")
}

func TestHSV(t *testing.T) {
	assert.Equal(t, ir.RGB{R: 1}, hsv(0, 1, 1))
	assert.Equal(t, ir.RGB{R: 1}, hsv(1, 1, 1), "hue wraps")
	assert.Equal(t, ir.RGB{R: 0.5, G: 0.5, B: 0.5}, hsv(0.3, 0, 0.5))
}

func TestNoiseRange(t *testing.T) {
	for i := uint64(0); i < 100; i++ {
		v := noise(7, i, i*3)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

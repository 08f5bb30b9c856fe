package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/engine"
	"github.com/roach88/ledcore/internal/store"
)

func TestSoakTickBudget(t *testing.T) {
	out, err := execute(t, NewSoakCommand(testOpts(t, "text")), "--ticks", "120", deskProject)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Soak ")
	assert.Contains(t, out, "stopped on ticks after 120 tick(s)")
	assert.Contains(t, out, "faults: 0  firings: 121")
}

func TestSoakJSONMatchesSimulate(t *testing.T) {
	out, err := execute(t, NewSoakCommand(testOpts(t, "json")), "--ticks", "30", deskProject)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   engine.SoakReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, engine.StopTicks, resp.Data.Reason)
	assert.Equal(t, int64(30), resp.Data.Ticks)

	sim := simulateJSON(t, testOpts(t, "json"), "--ticks", "30", deskProject)
	assert.Equal(t, sim.LastHash, resp.Data.LastHash, "soak and simulate tick the same frames")
}

func TestSoakRecordsRun(t *testing.T) {
	opts := testOpts(t, "json")
	out, err := execute(t, NewSoakCommand(opts), "--ticks", "25", deskProject)
	require.NoError(t, err)

	var resp struct {
		Data engine.SoakReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	st, err := store.Open(opts.cfg.DB.Path)
	require.NoError(t, err)
	defer st.Close()
	frames, err := st.ReadFrameHashes(context.Background(), resp.Data.RunID)
	require.NoError(t, err)
	require.Len(t, frames, 25)
	assert.Equal(t, resp.Data.LastHash, frames[24].Hash)
}

func TestSoakCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewSoakCommand(testOpts(t, "text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{deskProject})
	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSoakInvalidProject(t *testing.T) {
	_, err := execute(t, NewSoakCommand(testOpts(t, "text")), invalidProject)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

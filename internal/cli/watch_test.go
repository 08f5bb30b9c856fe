package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/diagnostics"
	"github.com/roach88/ledcore/internal/ir"
)

func newTestWatcher(t *testing.T, opts *RootOptions, path, target string) *projectWatcher {
	t.Helper()
	return &projectWatcher{
		opts:   &WatchOptions{RootOptions: opts, Target: target, Debounce: 10 * time.Millisecond},
		path:   path,
		probes: diagnostics.NewProbes(),
		logger: opts.Logger(),
	}
}

func TestWatchCheck(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		target     string
		valid      bool
		exportable bool
		errText    string
	}{
		{"exportable", deskProject, "", true, true, ""},
		{"blocked", deskProject, uno, true, false, ""},
		{"invalid", invalidProject, "", false, false, "validation error(s)"},
		{"unknown_target", deskProject, "nope", true, false, "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOpts(t, "text")
			cmd := NewWatchCommand(opts)
			res := newTestWatcher(t, opts, tt.path, tt.target).check(cmd)

			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.exportable, res.Export)
			if tt.errText != "" {
				assert.Contains(t, res.Error, tt.errText)
			} else {
				assert.Empty(t, res.Error)
			}
			if tt.valid {
				assert.NotEmpty(t, res.Hash)
			}
		})
	}
}

func TestWatchCheckRecordsProbes(t *testing.T) {
	opts := testOpts(t, "text")
	w := newTestWatcher(t, opts, deskProject, uno)
	w.check(NewWatchCommand(opts))

	snap := w.probes.Snapshot()
	require.NotNil(t, snap.Parity)
	assert.Equal(t, uno, snap.Parity.TargetID)
	assert.False(t, snap.Parity.OK)
	require.NotNil(t, snap.Eligibility)
	assert.Equal(t, "pulse", snap.Eligibility.BehaviorID)
	assert.Equal(t, ir.StatusBlocked, snap.Eligibility.Status)
}

func TestWatchReport(t *testing.T) {
	tests := []struct {
		name string
		res  WatchCheck
		want string
	}{
		{"exportable", WatchCheck{Valid: true, Export: true, Target: esp32}, "✓ valid, ✓ exportable to " + esp32},
		{"blocked", WatchCheck{Valid: true, Target: uno, Issues: 2}, "✓ valid, ✗ not exportable to " + uno + " (2 issue(s))"},
		{"invalid", WatchCheck{Error: "desk.cue: 1 validation error(s)"}, "✗ desk.cue: 1 validation error(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOpts(t, "text")
			buf := &bytes.Buffer{}
			w := newTestWatcher(t, opts, deskProject, "")
			w.report(newFormatter(opts, buf, buf), tt.res)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestWatchRechecksOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "desk.cue")
	src, err := os.ReadFile(deskProject)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, src, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(300 * time.Millisecond)
		broken := strings.Replace(string(src), `behavior: "solid"`, `behavior: "solidd"`, 1)
		_ = os.WriteFile(path, []byte(broken), 0o644)
	}()

	cmd := NewWatchCommand(testOpts(t, "text"))
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--debounce", "50ms", path})
	require.NoError(t, cmd.ExecuteContext(ctx))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Contains(t, lines[0], "✓ valid, ✓ exportable to "+esp32)
	assert.Contains(t, out.String(), `did you mean "solid"?`)
}

func TestWatchRejectsNonPositiveDebounce(t *testing.T) {
	_, err := execute(t, NewWatchCommand(testOpts(t, "text")), "--debounce", "0s", deskProject)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// ReplayResult holds the outcome of re-simulating a recorded run.
type ReplayResult struct {
	Original      string            `json:"original_run"`
	Replay        string            `json:"replay_run"`
	Frames        int               `json:"frames"`
	Deterministic bool              `json:"deterministic"`
	Divergence    *store.Divergence `json:"divergence,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <project.cue>",
		Short: "Re-simulate a recorded run and verify determinism",
		Long: `Re-run a recorded simulation with the same project, seed and dt, record
it as a new run, and compare frame hashes with the original. The first
differing frame is reported.

Exit codes:
  0 - Every frame hash matches
  1 - The runs diverge, or the project changed since the run was recorded
  2 - Command error (database not found, unknown run, etc.)

Examples:
  ledcore replay --db ./ledcore.db --run 0192... projects/desk.cue
  ledcore replay --db ./ledcore.db --run 0192... --format json projects/desk.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default db.path)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "id of the recorded run (required)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := opts.openStore(opts.Database, true)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.ReadRun(ctx, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeUnknownRun, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	frames, err := st.ReadFrameHashes(ctx, rec.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read frames", err)
	}
	if len(frames) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s has no recorded frames", rec.ID))
	}

	lp, err := opts.loadProject(cmd, path, 0)
	if err != nil {
		return err
	}
	lp.Project.Seed = rec.Seed
	if lp.Hash, err = ir.ProjectFingerprint(lp.Project); err != nil {
		return WrapExitError(ExitCommandError, "failed to fingerprint project", err)
	}
	if lp.Hash != rec.ProjectHash {
		msg := fmt.Sprintf("project %s no longer matches run %s: %s != %s", path, rec.ID, lp.Hash, rec.ProjectHash)
		_ = formatter.Error(ErrCodeHashChanged, msg, nil)
		return NewExitError(ExitFailure, msg)
	}
	formatter.VerboseLog("Replaying %d frame(s) of run %s (seed %d, dt %g)", len(frames), rec.ID, rec.Seed, rec.DT)

	sim := simulation{project: lp, dt: rec.DT, rec: &recorder{ctx: ctx, store: st}}
	replayed, err := sim.run(ctx, opts.Logger(), len(frames))
	if err != nil {
		return err
	}
	div, err := st.FirstDivergence(ctx, rec.ID, replayed.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compare runs", err)
	}

	result := &ReplayResult{
		Original:      rec.ID,
		Replay:        replayed.RunID,
		Frames:        len(frames),
		Deterministic: !div.Diverged,
	}
	if div.Diverged {
		result.Divergence = &div
	}

	_ = formatter.Result(status(result.Deterministic), result, func(w io.Writer) {
		if result.Deterministic {
			fmt.Fprintf(w, "✓ Run %s is deterministic: %d frame(s) match replay %s\n", rec.ID, result.Frames, result.Replay)
			return
		}
		fmt.Fprintf(w, "✗ Run %s diverges from replay %s\n", rec.ID, result.Replay)
		fmt.Fprintf(w, "  first differing frame: %d (after %d matching)\n", div.Seq, div.Compared)
		fmt.Fprintf(w, "  original: %s\n  replay:   %s\n", div.HashA, div.HashB)
	})
	if !result.Deterministic {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: run %s diverges at frame %d", ErrCodeDiverged, rec.ID, div.Seq))
	}
	return nil
}

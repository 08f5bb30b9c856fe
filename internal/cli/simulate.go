package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/ledcore/internal/diagnostics"
	"github.com/roach88/ledcore/internal/engine"
	"github.com/roach88/ledcore/internal/signal"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string
	Ticks    int
	DT       float64
	Seed     uint64
	RunID    string
}

// SimulationResult summarizes a simulated run.
type SimulationResult struct {
	RunID     string  `json:"run_id"`
	Project   string  `json:"project"`
	Hash      string  `json:"project_hash"`
	Seed      uint64  `json:"seed"`
	DT        float64 `json:"dt"`
	Frames    int64   `json:"frames"`
	Firings   int64   `json:"firings"`
	Faults    int64   `json:"faults"`
	LastHash  string  `json:"last_hash"`
	Recorded  bool    `json:"recorded"`
	LitPixels int     `json:"lit_pixels"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <project.cue>",
		Short: "Tick a project a fixed number of frames",
		Long: `Run a project for a fixed number of logical ticks as fast as possible.
Audio comes from the seeded simulator, so the same project, seed and dt
always produce the same frame hashes.

With --db (or db.path) every frame hash and rule firing is recorded, and
the run can later be checked with 'ledcore replay' or read with
'ledcore trace'.

Example:
  ledcore simulate --ticks 600 projects/desk.cue
  ledcore simulate --db ./ledcore.db --seed 7 projects/desk.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().IntVar(&opts.Ticks, "ticks", 60, "number of ticks")
	cmd.Flags().Float64Var(&opts.DT, "dt", 0, "seconds per tick (default sim.dt)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "override the project seed")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "use a fixed run id instead of a UUIDv7")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Ticks <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--ticks must be positive, got %d", opts.Ticks))
	}

	lp, err := opts.loadProject(cmd, path, opts.Seed)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return err
	}
	dt, err := opts.dt(cmd, opts.DT)
	if err != nil {
		return err
	}
	st, err := opts.openStore(opts.Database, false)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sim := simulation{project: lp, dt: dt, runID: opts.RunID}
	if st != nil {
		sim.rec = &recorder{ctx: ctx, store: st}
	}
	result, err := sim.run(ctx, opts.Logger(), opts.Ticks)
	if err != nil {
		return err
	}

	return formatter.Result("ok", result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Simulated %s: %d frame(s)\n", result.Project, result.Frames)
		fmt.Fprintf(w, "  run:       %s\n", result.RunID)
		fmt.Fprintf(w, "  seed:      %d  dt: %g\n", result.Seed, result.DT)
		fmt.Fprintf(w, "  firings:   %d  faults: %d\n", result.Firings, result.Faults)
		fmt.Fprintf(w, "  last hash: %s\n", result.LastHash)
		if result.Recorded {
			fmt.Fprintln(w, "  recorded to database")
		}
	})
}

// simulation ticks one engine a fixed number of frames with no host input.
// replay re-runs it with the recorded seed and dt.
type simulation struct {
	project *loadedProject
	dt      float64
	runID   string
	rec     *recorder
}

func (s simulation) run(ctx context.Context, logger *slog.Logger, ticks int) (*SimulationResult, error) {
	probes := diagnostics.NewProbes()
	opts := []engine.EngineOption{engine.WithObserver(probes.Observe)}
	if s.runID != "" {
		opts = append(opts, engine.WithRunIDGenerator(engine.NewFixedGenerator(s.runID)))
	}
	if s.rec != nil {
		opts = append(opts, engine.WithObserver(s.rec.observe))
	}
	eng, err := engine.New(s.project.Project, s.project.Registry, opts...)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to load project into engine", err)
	}
	if s.rec != nil {
		if err := s.rec.start(s.project, eng.RunID(), s.dt); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}

	result := &SimulationResult{
		RunID:    eng.RunID(),
		Project:  s.project.Project.Name,
		Hash:     s.project.Hash,
		Seed:     s.project.Project.Seed,
		DT:       s.dt,
		Recorded: s.rec != nil,
	}
	for range ticks {
		if err := ctx.Err(); err != nil {
			return nil, WrapExitError(ExitCommandError, "simulation cancelled", err)
		}
		frame, err := eng.Tick(s.dt, signal.Inputs{})
		if err != nil {
			return nil, WrapExitError(ExitFailure, "tick failed", err)
		}
		result.Frames = frame.Seq
		result.LastHash = frame.Hash

		snap := probes.Snapshot()
		result.Firings = snap.FiredTotal
		for _, l := range snap.Layers {
			if l.Fault != "" {
				result.Faults++
			}
		}
	}
	if s.rec != nil && s.rec.err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to record run", s.rec.err)
	}
	if latest, err := eng.Latest(); err == nil {
		for _, px := range latest.Pixels {
			if px.R != 0 || px.G != 0 || px.B != 0 {
				result.LitPixels++
			}
		}
	}

	logger.Info("simulation finished", "run", result.RunID, "frames", result.Frames, "hash", result.LastHash)
	return result, nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ledcore/internal/engine"
)

// SoakOptions holds flags for the soak command.
type SoakOptions struct {
	*RootOptions
	Ticks     int64
	Wall      time.Duration
	MaxFaults int64
	DT        float64
	Seed      uint64
	Database  string
}

// NewSoakCommand creates the soak command.
func NewSoakCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SoakOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "soak <project.cue>",
		Short: "Tick a project under a tick, time and fault budget",
		Long: `Run a project as fast as possible until the tick budget or wall-clock
budget is spent. Faulting behaviors never stop a tick, but a run whose
faults exceed --max-faults fails.

Exit codes:
  0 - The budget was spent without exceeding the fault limit
  1 - Fault budget exceeded, or a fatal tick error
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSoak(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Ticks, "ticks", engine.DefaultSoakTicks, "tick budget")
	cmd.Flags().DurationVar(&opts.Wall, "wall", 0, "wall-clock budget (default: unbounded)")
	cmd.Flags().Int64Var(&opts.MaxFaults, "max-faults", 0, "fail after this many behavior faults (default: unbounded)")
	cmd.Flags().Float64Var(&opts.DT, "dt", 0, "seconds per tick (default sim.dt)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "override the project seed")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")

	return cmd
}

func runSoak(opts *SoakOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
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

	engOpts := []engine.EngineOption{engine.WithLogger(opts.Logger())}
	var rec *recorder
	if st != nil {
		defer st.Close()
		rec = &recorder{ctx: ctx, store: st}
		engOpts = append(engOpts, engine.WithObserver(rec.observe))
	}
	eng, err := engine.New(lp.Project, lp.Registry, engOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load project into engine", err)
	}
	if rec != nil {
		if err := rec.start(lp, eng.RunID(), dt); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}

	rep, soakErr := engine.Soak(ctx, eng, engine.Budget{
		MaxTicks:  opts.Ticks,
		MaxWall:   opts.Wall,
		MaxFaults: opts.MaxFaults,
		DT:        dt,
	})
	if rec != nil && rec.err != nil {
		return WrapExitError(ExitCommandError, "failed to record run", rec.err)
	}

	_ = formatter.Result(status(soakErr == nil), rep, func(w io.Writer) {
		mark := "✓"
		if soakErr != nil {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s Soak %s stopped on %s after %d tick(s) in %s\n", mark, rep.RunID, rep.Reason, rep.Ticks, rep.Elapsed.Round(time.Millisecond))
		fmt.Fprintf(w, "  faults: %d  firings: %d\n", rep.Faults, rep.Firings)
		fmt.Fprintf(w, "  first: %s\n  last:  %s\n", rep.FirstHash, rep.LastHash)
		if soakErr != nil {
			fmt.Fprintf(w, "  error: %v\n", soakErr)
		}
	})
	if soakErr != nil {
		code := ExitFailure
		if rep.Reason == engine.StopCancelled {
			code = ExitCommandError
		}
		return WrapExitError(code, ErrCodeSoakFailed, soakErr)
	}
	return nil
}

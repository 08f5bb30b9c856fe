package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ledcore/internal/diagnostics"
	"github.com/roach88/ledcore/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	DT       float64
	Seed     uint64
	Duration time.Duration
	Metrics  string
	Toggles  []string // name=bool, applied before the first tick

	// RunIDGenerator overrides the UUIDv7 run ids (for testing).
	RunIDGenerator engine.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <project.cue>",
		Short: "Run a project in real time",
		Long: `Start the engine on a project and tick it every dt seconds of wall
clock until interrupted. Frames are recorded when a database is given, and
diagnostics are served for Prometheus when a metrics address is set.

Example:
  ledcore run --db ./ledcore.db projects/desk.cue
  ledcore run --metrics :9464 --toggle armed=true projects/desk.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().Float64Var(&opts.DT, "dt", 0, "seconds per tick (default sim.dt)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "override the project seed")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (default: until interrupted)")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", "", "serve /metrics on this address (default metrics.addr)")
	cmd.Flags().StringSliceVar(&opts.Toggles, "toggle", nil, "set a toggle before the first tick (name=true|false)")

	return cmd
}

func runEngine(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := opts.Logger()

	lp, err := opts.loadProject(cmd, path, opts.Seed)
	if err != nil {
		return err
	}
	dt, err := opts.dt(cmd, opts.DT)
	if err != nil {
		return err
	}
	toggles, err := parseToggles(opts.Toggles)
	if err != nil {
		return err
	}
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	metricsAddr := opts.Metrics
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}

	st, err := opts.openStore(opts.Database, false)
	if err != nil {
		return err
	}
	if st != nil {
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	probes := diagnostics.NewProbes()
	engOpts := []engine.EngineOption{engine.WithLogger(logger), engine.WithObserver(probes.Observe)}
	if opts.RunIDGenerator != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDGenerator))
	}
	var rec *recorder
	if st != nil {
		// Writes outlive the run context so the final tick is still recorded.
		rec = &recorder{ctx: context.WithoutCancel(parentCtx), store: st}
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
	for _, in := range toggles {
		eng.Enqueue(in)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Engine started: run %s (%s, dt %g)\n", eng.RunID(), lp.Project.Name, dt)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Stops the metrics server once the engine loop returns.
		defer cancel()
		err := eng.Run(gctx, dt)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})
	if metricsAddr != "" {
		reg := diagnostics.NewRegistry(probes)
		g.Go(func() error {
			return diagnostics.Serve(gctx, metricsAddr, reg, logger)
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	if rec != nil && rec.err != nil {
		return WrapExitError(ExitCommandError, "failed to record run", rec.err)
	}

	snap := probes.Snapshot()
	logger.Info("engine stopped gracefully", "run", eng.RunID(), "frames", snap.Frame)
	fmt.Fprintf(cmd.OutOrStdout(), "Engine stopped after %d frame(s)\n", snap.Frame)
	return nil
}

// parseToggles turns name=bool pairs into toggle inputs.
func parseToggles(pairs []string) ([]engine.Input, error) {
	out := make([]engine.Input, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --toggle %q: want name=true|false", pair))
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --toggle %q", pair), err)
		}
		out = append(out, engine.ToggleInput(name, v))
	}
	return out, nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ledcore/internal/diagnostics"
	"github.com/roach88/ledcore/internal/export"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Target   string
	Debounce time.Duration
	Metrics  string
}

// WatchCheck is the outcome of re-checking the project after a change.
type WatchCheck struct {
	Valid  bool   `json:"valid"`
	Hash   string `json:"project_hash,omitempty"`
	Target string `json:"target"`
	Export bool   `json:"exportable"`
	Issues int    `json:"issues"`
	Error  string `json:"error,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <project.cue>",
		Short: "Re-validate a project whenever its CUE files change",
		Long: `Watch the directory of a project and, after every change to a .cue file,
compile and validate the project and run the parity check against the
export target. One line is printed per check. Runs until interrupted.

With a metrics address the latest parity and eligibility results are
served for Prometheus.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "target id (default export.target)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "wait this long for more changes before checking")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", "", "serve /metrics on this address (default metrics.addr)")

	return cmd
}

func runWatch(opts *WatchOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := opts.Logger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Debounce <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--debounce must be positive, got %s", opts.Debounce))
	}

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	metricsAddr := opts.Metrics
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start file watcher", err)
	}
	defer fsw.Close()
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		return WrapExitError(ExitCommandError, "failed to watch "+dir, err)
	}
	logger.Info("watching project", "path", path, "dir", dir, "debounce", opts.Debounce)

	w := &projectWatcher{opts: opts, path: path, probes: diagnostics.NewProbes(), logger: logger}
	w.report(formatter, w.check(cmd))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.loop(gctx, cmd, formatter, fsw)
	})
	if metricsAddr != "" {
		reg := diagnostics.NewRegistry(w.probes)
		g.Go(func() error {
			return diagnostics.Serve(gctx, metricsAddr, reg, logger)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitCommandError, "watch failed", err)
	}
	return nil
}

type projectWatcher struct {
	opts   *WatchOptions
	path   string
	probes *diagnostics.Probes
	logger *slog.Logger
}

// loop debounces .cue events and re-checks once the directory is quiet.
func (w *projectWatcher) loop(ctx context.Context, cmd *cobra.Command, formatter *OutputFormatter, fsw *fsnotify.Watcher) error {
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".cue" || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			w.logger.Debug("project file changed", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(w.opts.Debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case <-timer.C:
			w.report(formatter, w.check(cmd))
		}
	}
}

// check recompiles the project and runs the parity validator.
func (w *projectWatcher) check(cmd *cobra.Command) WatchCheck {
	var res WatchCheck
	id, err := w.opts.targetID(w.opts.Target)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Target = id

	lp, err := w.opts.loadProject(cmd, w.path, 0)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Valid, res.Hash = true, lp.Hash

	treg, err := w.opts.loadTargets()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	t, err := treg.Resolve(id)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	rep := export.NewValidator(lp.Registry, export.WithLogger(w.logger)).Validate(lp.Project, t)
	w.probes.RecordParity(rep)
	for _, l := range rep.Layers {
		w.probes.RecordEligibility(l.EligibilityResult)
	}
	res.Export = rep.OK
	res.Issues = len(rep.Issues)
	return res
}

func (w *projectWatcher) report(formatter *OutputFormatter, res WatchCheck) {
	stamp := time.Now().Format(time.TimeOnly)
	_ = formatter.Result(status(res.Valid && res.Export), res, func(out io.Writer) {
		switch {
		case !res.Valid || res.Error != "":
			fmt.Fprintf(out, "[%s] ✗ %s\n", stamp, res.Error)
		case !res.Export:
			fmt.Fprintf(out, "[%s] ✓ valid, ✗ not exportable to %s (%d issue(s))\n", stamp, res.Target, res.Issues)
		default:
			fmt.Fprintf(out, "[%s] ✓ valid, ✓ exportable to %s\n", stamp, res.Target)
		}
	})
}

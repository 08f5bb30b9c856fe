package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ledcore/internal/ir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Rule     string // optional - only frames where this rule fired
	Project  string // list the runs recorded for this project instead
}

// TraceFrame is one recorded frame with the rules applied during it.
type TraceFrame struct {
	Seq   int64           `json:"seq"`
	Hash  string          `json:"hash"`
	Fired []ir.RuleFiring `json:"fired,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run      ir.RunRecord `json:"run"`
	Timeline []TraceFrame `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Frames  int            `json:"frames"`
	Firings int            `json:"firings"`
	ByRule  map[string]int `json:"by_rule"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded frames and rule firings of a run",
		Long: `Read a recorded run back from the database: the run parameters, every
frame hash in order, and the rules applied during each frame in firing
order.

With --project, list the ids of every run recorded for that project.

Examples:
  ledcore trace --db ./ledcore.db --run 0192...
  ledcore trace --db ./ledcore.db --run 0192... --rule drop
  ledcore trace --db ./ledcore.db --project projects/desk.cue`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default db.path)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "only show frames where this rule fired")
	cmd.Flags().StringVar(&opts.Project, "project", "", "list runs recorded for this project file")
	cmd.MarkFlagsOneRequired("run", "project")
	cmd.MarkFlagsMutuallyExclusive("run", "project")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
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

	if opts.Project != "" {
		lp, err := opts.loadProject(cmd, opts.Project, 0)
		if err != nil {
			return err
		}
		ids, err := st.RunsWithProject(ctx, lp.Hash)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return formatter.Result("ok", ids, func(w io.Writer) {
			if len(ids) == 0 {
				fmt.Fprintf(w, "No runs recorded for %s\n", lp.Project.Name)
				return
			}
			fmt.Fprintf(w, "Runs of %s (%s):\n", lp.Project.Name, lp.Hash)
			for _, id := range ids {
				fmt.Fprintf(w, "  %s\n", id)
			}
		})
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeUnknownRun, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	frames, err := st.ReadFrameHashes(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read frames", err)
	}
	firings, err := st.ReadFirings(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read firings", err)
	}

	result := buildTrace(run, frames, firings, opts.Rule)
	return formatter.Result("ok", result, func(w io.Writer) {
		outputTraceText(w, result, opts.Verbose)
	})
}

// buildTrace joins firings onto their frames. With a rule filter only
// frames where that rule fired are kept; stats always cover the whole run.
func buildTrace(run ir.RunRecord, frames []ir.FrameRecord, firings []ir.RuleFiring, rule string) TraceResult {
	byFrame := make(map[int64][]ir.RuleFiring)
	stats := TraceStats{Frames: len(frames), Firings: len(firings), ByRule: map[string]int{}}
	for _, f := range firings {
		byFrame[f.Frame] = append(byFrame[f.Frame], f)
		stats.ByRule[f.RuleID]++
	}

	timeline := []TraceFrame{}
	for _, fr := range frames {
		fired := byFrame[fr.Seq]
		if rule != "" && !slices.ContainsFunc(fired, func(f ir.RuleFiring) bool { return f.RuleID == rule }) {
			continue
		}
		timeline = append(timeline, TraceFrame{Seq: fr.Seq, Hash: fr.Hash, Fired: fired})
	}
	return TraceResult{Run: run, Timeline: timeline, Stats: stats}
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	run := result.Run
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  project: %s (%s)\n", run.Project, run.ProjectHash)
	fmt.Fprintf(w, "  seed: %d  dt: %g  engine: %s  opset: %s\n\n", run.Seed, run.DT, run.EngineVersion, run.OpSetVersion)

	fmt.Fprintln(w, "Timeline:")
	for _, fr := range result.Timeline {
		// Quiet frames only clutter the default view.
		if len(fr.Fired) == 0 && !verbose {
			continue
		}
		fmt.Fprintf(w, "  [%d] %s\n", fr.Seq, fr.Hash)
		for _, f := range fr.Fired {
			fmt.Fprintf(w, "      %d. %s %s %s = %g\n", f.Ordinal, f.RuleID, f.Action, f.Subject, f.Value)
		}
	}

	fmt.Fprintf(w, "\nStats: %d frame(s), %d firing(s)\n", result.Stats.Frames, result.Stats.Firings)
	for _, id := range slices.Sorted(maps.Keys(result.Stats.ByRule)) {
		fmt.Fprintf(w, "  %s: %d\n", id, result.Stats.ByRule[id])
	}
}

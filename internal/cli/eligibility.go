package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledcore/internal/behavior/builtin"
	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/store"
)

// EligibilityOptions holds flags for the eligibility command.
type EligibilityOptions struct {
	*RootOptions
	Behaviors []string
	Targets   []string
	Release   string // record the matrix under this release name
	Database  string
}

// EligibilityMatrix is the gate's verdict for every requested pair.
type EligibilityMatrix struct {
	Release string                 `json:"release,omitempty"`
	Results []ir.EligibilityResult `json:"results"`
	Counts  map[string]int         `json:"counts"`
}

// NewEligibilityCommand creates the eligibility command.
func NewEligibilityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EligibilityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eligibility",
		Short: "Show which behaviors can be exported to which targets",
		Long: `Evaluate the export gate for every (behavior, target) pair and print the
matrix. A pair is EXPORTABLE, PREVIEW_ONLY or BLOCKED, with the reason.

With --release the matrix is also recorded in the database, so a later
release can be compared with 'ledcore diff'.

Examples:
  ledcore eligibility
  ledcore eligibility --behavior plasma --target esp32_fastled_msgeq7
  ledcore eligibility --db ./ledcore.db --release v0.3.0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEligibility(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Behaviors, "behavior", nil, "behavior ids (default: all)")
	cmd.Flags().StringSliceVar(&opts.Targets, "target", nil, "target ids (default: all)")
	cmd.Flags().StringVar(&opts.Release, "release", "", "record the matrix under this release name")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default db.path)")

	return cmd
}

func runEligibility(opts *EligibilityOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	treg, err := opts.loadTargets()
	if err != nil {
		_ = formatter.Error(ErrCodeTargets, err.Error(), nil)
		return err
	}
	gate := export.NewGate(builtin.NewRegistry(), treg)
	matrix := &EligibilityMatrix{
		Release: opts.Release,
		Results: gate.Matrix(opts.Behaviors, opts.Targets),
		Counts:  map[string]int{},
	}
	for _, r := range matrix.Results {
		matrix.Counts[string(r.Status)]++
	}

	if opts.Release != "" {
		st, err := opts.openStore(opts.Database, true)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.WriteEligibilitySnapshot(ctx, opts.Release, matrix.Results); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record eligibility snapshot", err)
		}
		formatter.VerboseLog("Recorded %d pair(s) as release %s", len(matrix.Results), opts.Release)
	}

	return formatter.Result("ok", matrix, func(w io.Writer) {
		for _, r := range matrix.Results {
			fmt.Fprintf(w, "%-14s %-24s %-13s %s\n", r.BehaviorID, r.TargetID, r.Status, r.Reason)
		}
		fmt.Fprintf(w, "\n%d exportable, %d preview-only, %d blocked\n",
			matrix.Counts[string(ir.StatusExportable)],
			matrix.Counts[string(ir.StatusPreviewOnly)],
			matrix.Counts[string(ir.StatusBlocked)])
		if opts.Release != "" {
			fmt.Fprintf(w, "Recorded as release %s\n", opts.Release)
		}
	})
}

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Database string
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <from-release> [to-release]",
		Short: "Compare the eligibility matrices of two releases",
		Long: `Compare two recorded eligibility snapshots. Without a second release the
current matrix is compared with the recorded one.

A pair that went from EXPORTABLE to BLOCKED while neither the behavior nor
the target changed is a regression, and the command exits 1.

Examples:
  ledcore diff --db ./ledcore.db v0.2.0 v0.3.0
  ledcore diff --db ./ledcore.db v0.3.0`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default db.path)")

	return cmd
}

func runDiff(opts *DiffOptions, args []string, cmd *cobra.Command) error {
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

	prev, err := readSnapshot(ctx, st, args[0])
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	var cur []ir.EligibilityResult
	if len(args) == 2 {
		if cur, err = readSnapshot(ctx, st, args[1]); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return err
		}
	} else {
		treg, err := opts.loadTargets()
		if err != nil {
			return err
		}
		cur = export.NewGate(builtin.NewRegistry(), treg).Matrix(nil, nil)
	}

	diff := export.DiffEligibility(prev, cur)
	regressed := diff.Err()
	_ = formatter.Result(status(regressed == nil), diff, func(w io.Writer) {
		if len(diff.Changes) == 0 && len(diff.Added) == 0 && len(diff.Removed) == 0 {
			fmt.Fprintln(w, "✓ No eligibility changes")
			return
		}
		for _, c := range diff.Changes {
			mark := " "
			if c.Regression() {
				mark = "!"
			}
			fmt.Fprintf(w, "%s %s@%s: %s -> %s", mark, c.BehaviorID, c.TargetID, c.From, c.To)
			if c.Reason != "" {
				fmt.Fprintf(w, " (%s)", c.Reason)
			}
			fmt.Fprintln(w)
		}
		for _, r := range diff.Added {
			fmt.Fprintf(w, "+ %s@%s: %s\n", r.BehaviorID, r.TargetID, r.Status)
		}
		for _, r := range diff.Removed {
			fmt.Fprintf(w, "- %s@%s\n", r.BehaviorID, r.TargetID)
		}
		if regressed != nil {
			fmt.Fprintf(w, "\n✗ %d regression(s)\n", len(diff.Regressions))
		}
	})
	if regressed != nil {
		return WrapExitError(ExitFailure, ErrCodeRegression, regressed)
	}
	return nil
}

func readSnapshot(ctx context.Context, st *store.Store, release string) ([]ir.EligibilityResult, error) {
	results, err := st.ReadEligibilitySnapshot(ctx, release)
	if errors.Is(err, store.ErrNotFound) {
		known, _ := st.ListReleases(ctx)
		msg := fmt.Sprintf("release %q was never recorded", release)
		if s := ir.Suggest(release, known); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		return nil, NewExitError(ExitCommandError, msg)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read eligibility snapshot", err)
	}
	return results, nil
}

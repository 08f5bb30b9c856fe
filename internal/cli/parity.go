package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/targets"
)

// ParityOptions holds flags for the parity command.
type ParityOptions struct {
	*RootOptions
	Target   string
	Database string
}

// ParityResult is a parity report plus where it was recorded.
type ParityResult struct {
	ProjectHash string              `json:"project_hash"`
	Report      export.ParityReport `json:"report"`
	ReportID    int64               `json:"report_id,omitempty"`
	Inserted    bool                `json:"inserted,omitempty"`
}

// NewParityCommand creates the parity command.
func NewParityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "parity <project.cue>",
		Short: "Check that a project can be exported to a target",
		Long: `Validate a project against one export target: layer eligibility,
parameter encodings within tolerance, rule and modulator ops, signal
availability, RAM and LED budget, layout. Every issue is reported.

With a database the report is recorded under the project fingerprint.

Exit codes:
  0 - The project exports without blocking issues
  1 - At least one blocking issue
  2 - Command error

Examples:
  ledcore parity projects/desk.cue
  ledcore parity --target rp2040_fastled projects/desk.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParity(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "target id (default export.target)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the report in this SQLite database")

	return cmd
}

func runParity(opts *ParityOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	lp, err := opts.loadProject(cmd, path, 0)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return err
	}
	treg, err := opts.loadTargets()
	if err != nil {
		return err
	}
	id, err := opts.targetID(opts.Target)
	if err != nil {
		return err
	}
	t, err := treg.Resolve(id)
	if err != nil {
		_ = formatter.Error(ErrCodeTargets, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown target", err)
	}

	rep := export.NewValidator(lp.Registry, export.WithLogger(opts.Logger())).Validate(lp.Project, t)
	result := &ParityResult{ProjectHash: lp.Hash, Report: rep}

	st, err := opts.openStore(opts.Database, false)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		result.ReportID, result.Inserted, err = st.WriteParityReport(ctx, lp.Hash, rep)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record parity report", err)
		}
	}

	_ = formatter.Result(status(rep.OK), result, func(w io.Writer) {
		outputParityText(w, rep, opts.Verbose)
	})
	if err := rep.Err(); err != nil {
		return WrapExitError(ExitFailure, ErrCodeParity, err)
	}
	return nil
}

func outputParityText(w io.Writer, rep export.ParityReport, verbose bool) {
	mark := "✓"
	if !rep.OK {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s on %s (opset %s, tolerances %s)\n", mark, rep.Project, rep.TargetID, rep.OpSetVersion, rep.ToleranceVersion)
	b := rep.Budget
	fmt.Fprintf(w, "  budget: %d led(s), %d layer(s), %d/%d bytes RAM, cpu %s\n", b.Leds, b.Layers, b.RAMBytes, b.RAMLimit, b.CPUClass)
	if verbose {
		for _, l := range rep.Layers {
			fmt.Fprintf(w, "  layer %s: %s %s\n", l.LayerID, l.Status, l.Reason)
		}
		for _, e := range rep.Encodings {
			fmt.Fprintf(w, "  %s: %s worst %g tol %g\n", e.Subject, e.Encoding, e.WorstCaseError, e.Tolerance)
		}
	}
	for _, is := range rep.Issues {
		code := ""
		if is.Code != "" {
			code = fmt.Sprintf(" [%s]", is.Code)
		}
		fmt.Fprintf(w, "  %s%s %s: %s\n", is.Severity, code, is.Subject, is.Message)
	}
}

// ExportCheckOptions holds flags for the export-check command.
type ExportCheckOptions struct {
	*RootOptions
	Targets []string
}

// ExportCheckResult summarizes a project's parity across targets.
type ExportCheckResult struct {
	Project     string                `json:"project"`
	ProjectHash string                `json:"project_hash"`
	Reports     []export.ParityReport `json:"reports"`
	Exportable  []string              `json:"exportable"`
}

// NewExportCheckCommand creates the export-check command.
func NewExportCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportCheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export-check <project.cue>",
		Short: "Check a project against every export target",
		Long: `Run the parity validator for a project against every known target (or
the ones given with --target) and list where it can be exported. Exits 1
when no target accepts the project.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Targets, "target", nil, "target ids (default: all)")

	return cmd
}

func runExportCheck(opts *ExportCheckOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	lp, err := opts.loadProject(cmd, path, 0)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return err
	}
	treg, err := opts.loadTargets()
	if err != nil {
		return err
	}
	ids := opts.Targets
	if len(ids) == 0 {
		ids = treg.IDs()
	}

	reports, err := checkTargets(ctx, lp, treg, ids, export.NewValidator(lp.Registry, export.WithLogger(opts.Logger())))
	if err != nil {
		_ = formatter.Error(ErrCodeTargets, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown target", err)
	}

	result := &ExportCheckResult{Project: lp.Project.Name, ProjectHash: lp.Hash, Reports: reports, Exportable: []string{}}
	for _, rep := range reports {
		if rep.OK {
			result.Exportable = append(result.Exportable, rep.TargetID)
		}
	}
	ok := len(result.Exportable) > 0

	_ = formatter.Result(status(ok), result, func(w io.Writer) {
		for _, rep := range reports {
			mark := "✓"
			if !rep.OK {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %-24s %d error(s), %d warning(s)\n", mark, rep.TargetID, len(rep.Errors()), len(rep.Warnings()))
		}
		fmt.Fprintf(w, "\n%s exports to %d of %d target(s)\n", lp.Project.Name, len(result.Exportable), len(reports))
	})
	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s exports to no target", ErrCodeParity, lp.Project.Name))
	}
	return nil
}

// checkTargets validates lp against each target concurrently. Reports come
// back in the order of ids.
func checkTargets(ctx context.Context, lp *loadedProject, treg *targets.Registry, ids []string, v *export.Validator) ([]export.ParityReport, error) {
	reports := make([]export.ParityReport, len(ids))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			t, err := treg.Resolve(id)
			if err != nil {
				return err
			}
			reports[i] = v.Validate(lp.Project, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

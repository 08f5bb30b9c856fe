package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledcore/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Targets string // target pack file or directory to validate as well
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Project string                     `json:"project,omitempty"`
	Targets []string                   `json:"targets,omitempty"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <project.cue>",
		Short: "Validate a project without running it",
		Long: `Compile a CUE project and check it against the behavior registry and
signal catalogue: layer targets, rule references, parameter allow-list,
LED layout. Every error is reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Targets, "targets", "", "also validate a target pack (file or directory)")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result := &ValidationResult{Valid: true}
	if _, _, err := compileProject(path); err != nil {
		var invalid *ProjectInvalidError
		if !errors.As(err, &invalid) {
			return outputValidateError(formatter, ErrCodeCompile, err)
		}
		result.Errors = append(result.Errors, invalid.Errors...)
	}
	formatter.VerboseLog("Validated project %s", path)
	result.Project = path

	if opts.Targets != "" {
		ts, err := compiler.LoadTargets(opts.Targets)
		if err != nil {
			return outputValidateError(formatter, ErrCodeCompile, err)
		}
		for _, t := range ts {
			formatter.VerboseLog("Validating target: %s", t.ID)
			result.Targets = append(result.Targets, t.ID)
			result.Errors = append(result.Errors, compiler.Validate(t)...)
		}
	}

	result.Valid = len(result.Errors) == 0
	_ = formatter.Result(status(result.Valid), result, func(w io.Writer) {
		if result.Valid {
			fmt.Fprintf(w, "✓ %s is valid\n", path)
			if len(result.Targets) > 0 {
				fmt.Fprintf(w, "✓ %d target(s) valid\n", len(result.Targets))
			}
			return
		}
		fmt.Fprintf(w, "✗ Validation failed with %d error(s)\n\n", len(result.Errors))
		for _, ve := range result.Errors {
			fmt.Fprintf(w, "  %s\n", ve.Error())
		}
	})
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

// outputValidateError reports an error that stopped validation early. A
// project that does not compile is a validation failure, not a command error.
func outputValidateError(formatter *OutputFormatter, code string, err error) error {
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, code, err)
}

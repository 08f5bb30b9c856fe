package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ledcore/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the compiled project and its fingerprint.
type CompilationResult struct {
	Fingerprint  string     `json:"fingerprint"`
	OpSetVersion string     `json:"opset_version"`
	Project      ir.Project `json:"project"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <project.cue>",
		Short: "Compile a CUE project to IR",
		Long: `Compile and validate a CUE project, then print its IR as JSON together
with the project fingerprint used to identify recorded runs and parity
reports.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	p, _, err := compileProject(path)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return err
	}
	fp, err := ir.ProjectFingerprint(*p)
	if err != nil {
		_ = formatter.Error(ErrCodeCompile, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to fingerprint project", err)
	}
	result := &CompilationResult{Fingerprint: fp, OpSetVersion: ir.OpSetVersion, Project: *p}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
		formatter.VerboseLog("Wrote IR to %s", opts.Output)
	}

	return formatter.Result("ok", result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Compiled %s: %d led(s), %d layer(s), %d rule(s)\n",
			p.Name, p.Leds, len(p.Layers), len(p.Rules))
		fmt.Fprintf(w, "  fingerprint: %s\n", fp)
		if opts.Output != "" {
			fmt.Fprintf(w, "Wrote IR to %s\n", opts.Output)
		}
	})
}

// writeIRToFile writes the compilation result as indented JSON. The
// canonical form is used only for hashing.
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

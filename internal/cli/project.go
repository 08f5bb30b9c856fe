package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledcore/internal/behavior"
	"github.com/roach88/ledcore/internal/behavior/builtin"
	"github.com/roach88/ledcore/internal/compiler"
	"github.com/roach88/ledcore/internal/engine"
	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/store"
	"github.com/roach88/ledcore/internal/targets"
)

// Error codes reported by commands in addition to the compiler's E1xx codes.
const (
	ErrCodeCompile     = "E_COMPILE"
	ErrCodeInvalid     = "E_INVALID"
	ErrCodeStore       = "E_STORE"
	ErrCodeTargets     = "E_TARGETS"
	ErrCodeDiverged    = "E_DIVERGED"
	ErrCodeRegression  = "E_REGRESSION"
	ErrCodeParity      = "E_PARITY"
	ErrCodeSoakFailed  = "E_SOAK"
	ErrCodeUnknownRun  = "E_UNKNOWN_RUN"
	ErrCodeHashChanged = "E_PROJECT_CHANGED"
)

// loadedProject is a compiled, validated project ready to drive an engine.
type loadedProject struct {
	Path     string
	Project  ir.Project
	Hash     string
	Registry *behavior.Registry
}

// ProjectInvalidError carries every validation error of a project.
type ProjectInvalidError struct {
	Path   string
	Errors []compiler.ValidationError
}

func (e *ProjectInvalidError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("%s: %d validation error(s): %s", e.Path, len(e.Errors), strings.Join(msgs, "; "))
}

// compileProject compiles and validates path against the builtin behaviors.
// Compile failures and validation errors both exit with ExitFailure.
func compileProject(path string) (*ir.Project, *behavior.Registry, error) {
	p, err := compiler.LoadProject(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitFailure, "failed to compile project", err)
	}
	reg := builtin.NewRegistry()
	if errs := compiler.Validate(p, compiler.WithBehaviors(reg.IDs())); len(errs) > 0 {
		return nil, nil, WrapExitError(ExitFailure, "invalid project", &ProjectInvalidError{Path: path, Errors: errs})
	}
	return p, reg, nil
}

// loadProject compiles path and applies the configured simulation overrides.
// A --seed flag wins over sim.seed; sim.leds resizes the strip.
func (o *RootOptions) loadProject(cmd *cobra.Command, path string, seed uint64) (*loadedProject, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	p, reg, err := compileProject(path)
	if err != nil {
		return nil, err
	}

	switch {
	case cmd.Flags().Changed("seed"):
		p.Seed = seed
	case cfg.Sim.Seed != 0:
		p.Seed = cfg.Sim.Seed
	}
	if cfg.Sim.Leds > 0 && cfg.Sim.Leds != p.Leds {
		p.Leds = cfg.Sim.Leds
		if errs := compiler.Validate(p, compiler.WithBehaviors(reg.IDs())); len(errs) > 0 {
			return nil, WrapExitError(ExitFailure, "invalid project after sim.leds override", &ProjectInvalidError{Path: path, Errors: errs})
		}
	}

	hash, err := ir.ProjectFingerprint(*p)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to fingerprint project", err)
	}
	o.Logger().Debug("project loaded", "path", path, "project", p.Name, "hash", hash, "seed", p.Seed)
	return &loadedProject{Path: path, Project: *p, Hash: hash, Registry: reg}, nil
}

// dt returns the tick length: the flag when set, otherwise sim.dt.
func (o *RootOptions) dt(cmd *cobra.Command, flag float64) (float64, error) {
	if cmd.Flags().Changed("dt") {
		if !(flag > 0) {
			return 0, NewExitError(ExitCommandError, fmt.Sprintf("--dt must be positive, got %g", flag))
		}
		return flag, nil
	}
	cfg, err := o.Config()
	if err != nil {
		return 0, err
	}
	return cfg.Sim.DT, nil
}

// loadTargets returns the builtin targets merged with the configured packs.
func (o *RootOptions) loadTargets() (*targets.Registry, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	reg, err := targets.Load(cfg.Export.TargetPacks)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load export targets", err)
	}
	return reg, nil
}

// targetID returns the flag value or export.target.
func (o *RootOptions) targetID(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := o.Config()
	if err != nil {
		return "", err
	}
	return cfg.Export.Target, nil
}

// openStore opens the database named by the flag or db.path. When required
// is false and neither is set, it returns a nil store.
func (o *RootOptions) openStore(flag string, required bool) (*store.Store, error) {
	path := flag
	if path == "" {
		cfg, err := o.Config()
		if err != nil {
			return nil, err
		}
		path = cfg.DB.Path
	}
	if path == "" {
		if required {
			return nil, NewExitError(ExitCommandError, "no database: pass --db or set db.path")
		}
		return nil, nil
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// recorder persists every tick of a run. The first write error is kept and
// later ticks are not recorded.
type recorder struct {
	ctx   context.Context
	store *store.Store
	err   error
}

func (r *recorder) start(lp *loadedProject, runID string, dt float64) error {
	return r.store.CreateRun(r.ctx, ir.RunRecord{
		ID:            runID,
		Project:       lp.Project.Name,
		ProjectHash:   lp.Hash,
		Seed:          lp.Project.Seed,
		DT:            dt,
		EngineVersion: ir.EngineVersion,
		OpSetVersion:  ir.OpSetVersion,
	})
}

func (r *recorder) observe(res engine.TickResult) {
	if r.err != nil || res.Frame == nil {
		return
	}
	if err := r.store.WriteFrame(r.ctx, ir.FrameRecord{RunID: res.RunID, Seq: res.Frame.Seq, Hash: res.Frame.Hash}); err != nil {
		r.err = err
		return
	}
	if err := r.store.WriteFirings(r.ctx, engine.Firings(res.RunID, res.Rules)); err != nil {
		r.err = err
	}
}

package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/ledcore/internal/ir"
)

// LoadProject reads the `project` struct from a .cue file, or from the CUE
// package in a directory, and compiles it.
func LoadProject(path string) (*ir.Project, error) {
	v, err := build(path)
	if err != nil {
		return nil, err
	}
	return CompileProject(v.LookupPath(cue.ParsePath("project")))
}

// CompileProjectSource compiles the `project` struct of in-memory CUE source.
func CompileProjectSource(filename string, src []byte) (*ir.Project, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProject(v.LookupPath(cue.ParsePath("project")))
}

// LoadTargets reads every entry of the `target` struct from a .cue file or
// directory.
func LoadTargets(path string) ([]ir.ExportTarget, error) {
	v, err := build(path)
	if err != nil {
		return nil, err
	}
	return compileTargetStruct(v)
}

// CompileTargetSource compiles the `target` struct of in-memory CUE source.
func CompileTargetSource(filename string, src []byte) ([]ir.ExportTarget, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileTargetStruct(v)
}

func compileTargetStruct(v cue.Value) ([]ir.ExportTarget, error) {
	tv := v.LookupPath(cue.ParsePath("target"))
	if !tv.Exists() {
		return nil, &CompileError{Field: "target", Message: "no target struct found", Pos: v.Pos()}
	}
	return CompileTargets(tv)
}

// build evaluates a single file, or the CUE package rooted at a directory.
func build(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("stat %s: %w", path, err)
	}
	ctx := cuecontext.New()

	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, fmt.Errorf("read %s: %w", path, err)
		}
		v := ctx.CompileBytes(src, cue.Filename(path))
		if err := v.Err(); err != nil {
			return cue.Value{}, formatCUEError(err)
		}
		return v, nil
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances in %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

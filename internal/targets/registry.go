// Package targets holds the export target registry: the builtin target pack
// embedded in the binary plus any packs discovered on disk.
//
// A target pack is a CUE file with a top-level `target` struct, one field
// per target id:
//
//	target: esp32_fastled_msgeq7: {
//		memory_class:     "large"
//		supports_audio:   true
//		supported_op_set: [...]
//	}
package targets

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/ledcore/internal/compiler"
	"github.com/roach88/ledcore/internal/ir"
)

//go:embed builtin.cue
var builtinSource []byte

// Registry is an immutable set of export targets keyed by id.
// It satisfies export.TargetSource.
type Registry struct {
	targets map[string]ir.ExportTarget
	ids     []string
	origin  map[string]string
}

// New builds a registry from targets. Every target is structurally
// validated; all failures are reported together. Duplicate ids are an error.
func New(ts ...ir.ExportTarget) (*Registry, error) {
	b := newBuilder()
	for _, t := range ts {
		b.add(t, "")
	}
	return b.build()
}

var (
	builtinOnce sync.Once
	builtinReg  *Registry
	builtinErr  error
)

// Builtin returns the registry of targets shipped with ledcore.
func Builtin() (*Registry, error) {
	builtinOnce.Do(func() {
		ts, err := compiler.CompileTargetSource("builtin.cue", builtinSource)
		if err != nil {
			builtinErr = fmt.Errorf("builtin targets: %w", err)
			return
		}
		b := newBuilder()
		for _, t := range ts {
			b.add(t, "builtin")
		}
		builtinReg, builtinErr = b.build()
	})
	return builtinReg, builtinErr
}

// Lookup returns the target with id.
func (r *Registry) Lookup(id string) (ir.ExportTarget, bool) {
	t, ok := r.targets[id]
	return t, ok
}

// IDs returns every target id, sorted.
func (r *Registry) IDs() []string {
	return slices.Clone(r.ids)
}

// Len returns the number of targets.
func (r *Registry) Len() int { return len(r.ids) }

// Origin returns where a target was defined: "builtin" or a pack file path.
func (r *Registry) Origin(id string) string { return r.origin[id] }

// Resolve looks up id, returning an UNRESOLVED_REFERENCE error with a
// suggestion when the id is unknown.
func (r *Registry) Resolve(id string) (ir.ExportTarget, error) {
	if t, ok := r.targets[id]; ok {
		return t, nil
	}
	return ir.ExportTarget{}, &ir.Error{
		Code:       ir.ErrCodeUnresolvedReference,
		Subject:    "target:" + id,
		Message:    fmt.Sprintf("unknown export target %q", id),
		Suggestion: ir.Suggest(id, r.ids),
	}
}

// Merge returns a registry holding r's targets followed by others'. An id
// defined twice is an error.
func (r *Registry) Merge(others ...*Registry) (*Registry, error) {
	b := newBuilder()
	for _, reg := range append([]*Registry{r}, others...) {
		for _, id := range reg.ids {
			b.add(reg.targets[id], reg.origin[id])
		}
	}
	return b.build()
}

type builder struct {
	targets map[string]ir.ExportTarget
	origin  map[string]string
	errs    []error
}

func newBuilder() *builder {
	return &builder{targets: map[string]ir.ExportTarget{}, origin: map[string]string{}}
}

func (b *builder) add(t ir.ExportTarget, origin string) {
	where := ""
	if origin != "" {
		where = " (" + origin + ")"
	}
	if errs := compiler.Validate(t); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		b.errs = append(b.errs, fmt.Errorf("target %q%s: %s", t.ID, where, strings.Join(msgs, "; ")))
		return
	}
	if prev, dup := b.origin[t.ID]; dup {
		if prev == "" {
			prev = "an earlier entry"
		}
		b.errs = append(b.errs, fmt.Errorf("target %q%s: already defined in %s", t.ID, where, prev))
		return
	}
	b.targets[t.ID] = t
	b.origin[t.ID] = origin
}

func (b *builder) build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	ids := make([]string, 0, len(b.targets))
	for id := range b.targets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return &Registry{targets: b.targets, ids: ids, origin: b.origin}, nil
}

package targets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/ledcore/internal/compiler"
)

// PackPattern matches target pack files below a pack root.
const PackPattern = "**/*.cue"

// Discover loads every target pack file under root. Files are loaded in
// lexical path order; a failing file does not stop the walk, and all
// failures are returned together.
func Discover(root string) (*Registry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("target packs: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("target packs: %s is not a directory", root)
	}

	// doublestar returns matches in walk order, which is lexical.
	matches, err := doublestar.Glob(os.DirFS(root), PackPattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("target packs: glob: %w", err)
	}

	b := newBuilder()
	for _, rel := range matches {
		path := filepath.Join(root, filepath.FromSlash(rel))
		ts, err := compiler.LoadTargets(path)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		slog.Debug("target pack loaded", "path", path, "targets", len(ts))
		for _, t := range ts {
			b.add(t, path)
		}
	}
	return b.build()
}

// Load returns the builtin registry extended with the packs under root.
// An empty root yields the builtin registry alone.
func Load(root string) (*Registry, error) {
	builtin, err := Builtin()
	if err != nil {
		return nil, err
	}
	if root == "" {
		return builtin, nil
	}
	packs, err := Discover(root)
	if err != nil {
		return nil, err
	}
	merged, err := builtin.Merge(packs)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("target packs under %s", root), err)
	}
	return merged, nil
}

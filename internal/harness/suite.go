package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// ScenarioPattern matches scenario files below a suite root.
const ScenarioPattern = "**/*.{yaml,yml}"

// SuiteResult is one scenario of a suite run.
type SuiteResult struct {
	Path   string
	Name   string
	Result *Result
	Err    error // load or execution error; nil when assertions ran
}

// Passed reports whether the scenario ran and every assertion held.
func (r SuiteResult) Passed() bool {
	return r.Err == nil && r.Result != nil && r.Result.Pass
}

// DiscoverScenarios returns the scenario files below root in sorted order.
// A root that is itself a file is returned as the only scenario.
func DiscoverScenarios(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), ScenarioPattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(root, filepath.FromSlash(m))
	}
	slices.Sort(paths)
	return paths, nil
}

// RunSuite runs every scenario below root. A scenario that fails to load
// or run is reported in its SuiteResult and does not stop the suite.
func RunSuite(root string) ([]SuiteResult, error) {
	paths, err := DiscoverScenarios(root)
	if err != nil {
		return nil, err
	}
	results := make([]SuiteResult, 0, len(paths))
	for _, path := range paths {
		sr := SuiteResult{Path: path}
		sc, err := LoadScenario(path)
		if err != nil {
			sr.Err = err
			results = append(results, sr)
			continue
		}
		sr.Name = sc.Name
		sr.Result, sr.Err = Run(sc)
		results = append(results, sr)
	}
	return results, nil
}

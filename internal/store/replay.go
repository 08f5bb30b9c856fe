package store

import (
	"context"
	"fmt"
)

// Divergence describes where two runs' frame hashes first differ.
type Divergence struct {
	RunA string `json:"run_a"`
	RunB string `json:"run_b"`
	// Seq is the first frame whose hashes differ, or the first frame only
	// one run recorded. Zero when the runs match.
	Seq      int64  `json:"seq"`
	HashA    string `json:"hash_a"`
	HashB    string `json:"hash_b"`
	Diverged bool   `json:"diverged"`
	// Compared is the number of frames both runs recorded.
	Compared int `json:"compared"`
}

// FirstDivergence compares two recorded runs frame by frame. Runs of the
// same project, seed and dt sequence must never diverge; a divergence is a
// determinism bug.
//
// A run that recorded fewer frames diverges at the first frame it is
// missing.
func (s *Store) FirstDivergence(ctx context.Context, runA, runB string) (Divergence, error) {
	d := Divergence{RunA: runA, RunB: runB}

	a, err := s.ReadFrameHashes(ctx, runA)
	if err != nil {
		return d, fmt.Errorf("first divergence: %w", err)
	}
	b, err := s.ReadFrameHashes(ctx, runB)
	if err != nil {
		return d, fmt.Errorf("first divergence: %w", err)
	}

	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i].Seq != b[i].Seq || a[i].Hash != b[i].Hash {
			d.Seq = min(a[i].Seq, b[i].Seq)
			d.HashA, d.HashB = a[i].Hash, b[i].Hash
			d.Diverged = true
			d.Compared = i
			return d, nil
		}
	}
	d.Compared = n
	switch {
	case len(a) > n:
		d.Seq, d.HashA, d.Diverged = a[n].Seq, a[n].Hash, true
	case len(b) > n:
		d.Seq, d.HashB, d.Diverged = b[n].Seq, b[n].Hash, true
	}
	return d, nil
}

// RunsWithProject returns the ids of every run of a project fingerprint,
// ordered by id. Used to find earlier runs to compare a new one against.
func (s *Store) RunsWithProject(ctx context.Context, projectHash string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM runs WHERE project_hash = ? ORDER BY id COLLATE BINARY ASC
	`, projectHash)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return ids, nil
}

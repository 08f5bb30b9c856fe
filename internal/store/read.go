package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ReadRun returns the run record for id, or ErrNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.RunRecord, error) {
	var (
		run  ir.RunRecord
		seed int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project, project_hash, seed, dt, engine_version, opset_version
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Project, &run.ProjectHash, &seed, &run.DT, &run.EngineVersion, &run.OpSetVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RunRecord{}, fmt.Errorf("read run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("read run %s: %w", id, err)
	}
	run.Seed = uint64(seed)
	return run, nil
}

// ReadFrameHashes returns a run's frame records ordered by seq.
// Returns an empty slice (not nil) if the run recorded no frames.
func (s *Store) ReadFrameHashes(ctx context.Context, runID string) ([]ir.FrameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, hash
		FROM frames
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	frames := []ir.FrameRecord{}
	for rows.Next() {
		var f ir.FrameRecord
		if err := rows.Scan(&f.RunID, &f.Seq, &f.Hash); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return frames, nil
}

// ReadFirings returns a run's rule firings ordered by frame, then ordinal.
// Returns an empty slice (not nil) if nothing fired.
func (s *Store) ReadFirings(ctx context.Context, runID string) ([]ir.RuleFiring, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, frame, ordinal, rule_id, action, subject, value
		FROM rule_firings
		WHERE run_id = ?
		ORDER BY frame ASC, ordinal ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []ir.RuleFiring{}
	for rows.Next() {
		var (
			f      ir.RuleFiring
			action string
		)
		if err := rows.Scan(&f.ID, &f.RunID, &f.Frame, &f.Ordinal, &f.RuleID, &action, &f.Subject, &f.Value); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		f.Action = ir.ActionKind(action)
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}

// ReadEligibilitySnapshot returns a release's matrix ordered by behavior id,
// then target id, or ErrNotFound if the release was never recorded.
func (s *Store) ReadEligibilitySnapshot(ctx context.Context, release string) ([]ir.EligibilityResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT behavior_id, target_id, status, reason, behavior_fingerprint, target_fingerprint
		FROM eligibility
		WHERE release = ?
		ORDER BY behavior_id COLLATE BINARY ASC, target_id COLLATE BINARY ASC
	`, release)
	if err != nil {
		return nil, fmt.Errorf("query eligibility: %w", err)
	}
	defer rows.Close()

	var results []ir.EligibilityResult
	for rows.Next() {
		var (
			r      ir.EligibilityResult
			status string
		)
		if err := rows.Scan(&r.BehaviorID, &r.TargetID, &status, &r.Reason, &r.BehaviorFingerprint, &r.TargetFingerprint); err != nil {
			return nil, fmt.Errorf("scan eligibility: %w", err)
		}
		r.Status = ir.EligibilityStatus(status)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligibility: %w", err)
	}
	if results == nil {
		return nil, fmt.Errorf("eligibility snapshot %q: %w", release, ErrNotFound)
	}
	return results, nil
}

// ListReleases returns every recorded release name, sorted.
func (s *Store) ListReleases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT release FROM eligibility ORDER BY release COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query releases: %w", err)
	}
	defer rows.Close()

	releases := []string{}
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		releases = append(releases, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate releases: %w", err)
	}
	return releases, nil
}

// ReadParityReports returns the most recent report per target for a
// project fingerprint, ordered by target id. Returns an empty slice (not
// nil) if none exist.
func (s *Store) ReadParityReports(ctx context.Context, projectHash string) ([]export.ParityReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report
		FROM parity_reports p
		WHERE project_hash = ?
		  AND checked = (
			SELECT MAX(checked) FROM parity_reports q
			WHERE q.project_hash = p.project_hash AND q.target_id = p.target_id
		  )
		ORDER BY target_id COLLATE BINARY ASC
	`, projectHash)
	if err != nil {
		return nil, fmt.Errorf("query parity reports: %w", err)
	}
	return scanParityReports(rows)
}

// ReadParityHistory returns every distinct report stored for a project on
// one target, oldest check first.
func (s *Store) ReadParityHistory(ctx context.Context, projectHash, targetID string) ([]export.ParityReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report
		FROM parity_reports
		WHERE project_hash = ? AND target_id = ?
		ORDER BY checked ASC
	`, projectHash, targetID)
	if err != nil {
		return nil, fmt.Errorf("query parity history: %w", err)
	}
	return scanParityReports(rows)
}

func scanParityReports(rows *sql.Rows) ([]export.ParityReport, error) {
	defer rows.Close()

	reports := []export.ParityReport{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan parity report: %w", err)
		}
		var rep export.ParityReport
		if err := unmarshalJSON(body, &rep); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parity reports: %w", err)
	}
	return reports, nil
}

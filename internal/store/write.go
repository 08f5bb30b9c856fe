package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/ir"
)

// CreateRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) CreateRun(ctx context.Context, run ir.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, project, project_hash, seed, dt, engine_version, opset_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Project,
		run.ProjectHash,
		int64(run.Seed),
		run.DT,
		run.EngineVersion,
		run.OpSetVersion,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// WriteFrame records the hash of one published frame.
// Idempotent on (run_id, seq). The run must exist (foreign key constraint).
func (s *Store) WriteFrame(ctx context.Context, rec ir.FrameRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frames (run_id, seq, hash)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`, rec.RunID, rec.Seq, rec.Hash)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteFirings records one tick's rule firings in a single transaction.
// Idempotent on (run_id, frame, ordinal).
func (s *Store) WriteFirings(ctx context.Context, firings []ir.RuleFiring) error {
	if len(firings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write firings: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rule_firings
		(run_id, frame, ordinal, rule_id, action, subject, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, frame, ordinal) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write firings: prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range firings {
		if _, err := stmt.ExecContext(ctx, f.RunID, f.Frame, f.Ordinal, f.RuleID, string(f.Action), f.Subject, f.Value); err != nil {
			return fmt.Errorf("write firings: rule %s frame %d: %w", f.RuleID, f.Frame, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write firings: commit: %w", err)
	}
	return nil
}

// WriteEligibilitySnapshot stores a release's eligibility matrix.
// Idempotent on (release, behavior_id, target_id): re-recording a release
// keeps the first snapshot.
func (s *Store) WriteEligibilitySnapshot(ctx context.Context, release string, results []ir.EligibilityResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write eligibility snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, r := range results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO eligibility
			(release, behavior_id, target_id, status, reason, behavior_fingerprint, target_fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(release, behavior_id, target_id) DO NOTHING
		`,
			release,
			r.BehaviorID,
			r.TargetID,
			string(r.Status),
			r.Reason,
			r.BehaviorFingerprint,
			r.TargetFingerprint,
		)
		if err != nil {
			return fmt.Errorf("write eligibility snapshot: %s@%s: %w", r.BehaviorID, r.TargetID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write eligibility snapshot: commit: %w", err)
	}
	return nil
}

// WriteParityReport stores a parity report for a project fingerprint.
// Reports are keyed by every input of the verdict: project hash, target id
// and fingerprint, behavior catalog, op-set and tolerance versions. A report
// with an existing key keeps its row and is marked as the latest check;
// inserted reports whether a new row was created.
func (s *Store) WriteParityReport(ctx context.Context, projectHash string, rep export.ParityReport) (id int64, inserted bool, err error) {
	body, err := marshalJSON(rep)
	if err != nil {
		return 0, false, fmt.Errorf("write parity report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("write parity report: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var checked int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(checked), 0) + 1 FROM parity_reports`).Scan(&checked); err != nil {
		return 0, false, fmt.Errorf("write parity report: next sequence: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT id FROM parity_reports
		WHERE project_hash = ? AND target_id = ? AND target_fingerprint = ?
		  AND catalog = ? AND opset_version = ? AND tolerance_version = ?
	`, projectHash, rep.TargetID, rep.TargetFingerprint, rep.Catalog, rep.OpSetVersion, rep.ToleranceVersion).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(ctx, `
			INSERT INTO parity_reports
			(project, project_hash, target_id, target_fingerprint, catalog, opset_version, tolerance_version, ok, report, checked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rep.Project,
			projectHash,
			rep.TargetID,
			rep.TargetFingerprint,
			rep.Catalog,
			rep.OpSetVersion,
			rep.ToleranceVersion,
			boolToInt(rep.OK),
			body,
			checked,
		)
		if err != nil {
			return 0, false, fmt.Errorf("write parity report: insert: %w", err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return 0, false, fmt.Errorf("write parity report: last insert id: %w", err)
		}
		inserted = true
	case err != nil:
		return 0, false, fmt.Errorf("write parity report: select existing: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE parity_reports SET checked = ? WHERE id = ?`, checked, id); err != nil {
			return 0, false, fmt.Errorf("write parity report: mark checked: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("write parity report: commit: %w", err)
	}
	return id, inserted, nil
}

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objectExists(t *testing.T, s *Store, kind, name string) bool {
	t.Helper()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?`, kind, name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := createTestStore(t)
	for _, table := range []string{"runs", "frames", "rule_firings", "eligibility", "parity_reports"} {
		assert.True(t, objectExists(t, s, "table", table), table)
	}
	for _, index := range []string{"idx_rule_firings_run", "idx_parity_reports_project", "idx_eligibility_status"} {
		assert.True(t, objectExists(t, s, "index", index), index)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		if i == 0 {
			require.NoError(t, s.CreateRun(ctx, createTestRun("run-1", "p1")))
		}
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.ProjectHash)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "audit.db"))
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())

	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NotPanics(t, func() { _ = s.Close() })
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)
	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.pragma(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrameRequiresRun(t *testing.T) {
	s := createTestStore(t)
	_, err := s.db.Exec(`INSERT INTO frames (run_id, seq, hash) VALUES ('missing', 1, 'h')`)
	assert.Error(t, err, "foreign key on frames.run_id")
}

func TestMigrate_FromUnversionedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_eligibility_status")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, objectExists(t, s, "index", "idx_eligibility_status"))
	v, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	assert.Equal(t, 2, schemaVersion())
}

func TestMigrate_RebuildsLegacyParityTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec(`
		DROP TABLE parity_reports;
		CREATE TABLE parity_reports (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			project           TEXT NOT NULL,
			project_hash      TEXT NOT NULL,
			target_id         TEXT NOT NULL,
			tolerance_version TEXT NOT NULL,
			ok                INTEGER NOT NULL,
			report            TEXT NOT NULL,
			UNIQUE (project_hash, target_id, tolerance_version)
		);
		CREATE INDEX idx_parity_reports_project ON parity_reports(project_hash);
		INSERT INTO parity_reports (project, project_hash, target_id, tolerance_version, ok, report)
		VALUES ('desk', 'sha256:aaa', 'uno', 'v1', 1, '{"project":"desk","target_id":"uno","ok":true}');
		PRAGMA user_version = 1;
	`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	got, err := s.ReadParityReports(ctx, "sha256:aaa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].OK)

	// The legacy row no longer shadows a report against a known target.
	rep := testReport("uno", false)
	rep.TargetFingerprint = "t2"
	_, inserted, err := s.WriteParityReport(ctx, "sha256:aaa", rep)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err = s.ReadParityReports(ctx, "sha256:aaa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].OK)
}

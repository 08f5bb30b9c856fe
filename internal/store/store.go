package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragmas are applied to every connection the store opens. WAL lets trace
// and replay read while a run is still recording.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migration upgrades a database created by an older ledcore. Versions are
// stored in PRAGMA user_version and applied in order.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{1, "eligibility status index", `CREATE INDEX IF NOT EXISTS idx_eligibility_status ON eligibility(release, status)`},
	{2, "parity report inputs", `
		CREATE TABLE parity_reports_v2 (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			project            TEXT NOT NULL,
			project_hash       TEXT NOT NULL,
			target_id          TEXT NOT NULL,
			target_fingerprint TEXT NOT NULL,
			catalog            TEXT NOT NULL,
			opset_version      TEXT NOT NULL,
			tolerance_version  TEXT NOT NULL,
			ok                 INTEGER NOT NULL,
			report             TEXT NOT NULL,
			checked            INTEGER NOT NULL,
			UNIQUE (project_hash, target_id, target_fingerprint, catalog, opset_version, tolerance_version)
		);
		INSERT INTO parity_reports_v2
			(id, project, project_hash, target_id, target_fingerprint, catalog, opset_version, tolerance_version, ok, report, checked)
		SELECT id, project, project_hash, target_id, '', '', '', tolerance_version, ok, report, id
		FROM parity_reports;
		DROP TABLE parity_reports;
		ALTER TABLE parity_reports_v2 RENAME TO parity_reports;
		CREATE INDEX IF NOT EXISTS idx_parity_reports_project ON parity_reports(project_hash, target_id, checked);
	`},
}

func schemaVersion() int { return migrations[len(migrations)-1].version }

// Store is the append-only audit log for runs, eligibility snapshots and
// parity reports.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path, applying pragmas, the
// schema and any pending migrations. Opening an up-to-date database is a
// no-op beyond the connection itself.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}

	// One connection: SQLite has a single writer and the recorder writes
	// from one goroutine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := setup(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection. Safe on a zero Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func setup(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}

	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'runs'`).Scan(&tables); err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if tables == 0 {
		// A new database gets the current schema and needs no migrations.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion())); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		return nil
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("set user_version %d: %w", m.version, err)
		}
	}
	return nil
}

// pragma reads the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}

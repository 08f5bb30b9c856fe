package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/ledcore/internal/ir"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run record with minimal required fields.
func createTestRun(id, projectHash string) ir.RunRecord {
	return ir.RunRecord{
		ID:            id,
		Project:       "test-project",
		ProjectHash:   projectHash,
		Seed:          7,
		DT:            1.0 / 60,
		EngineVersion: ir.EngineVersion,
		OpSetVersion:  ir.OpSetVersion,
	}
}

// createTestFrames returns n frame records for run with hashes h<seq>,
// except that seq == divergeAt (if > 0) gets hash "x".
func createTestFrames(run string, n int, divergeAt int64) []ir.FrameRecord {
	frames := make([]ir.FrameRecord, n)
	for i := range frames {
		seq := int64(i + 1)
		hash := "h" + string(rune('a'+i%26))
		if seq == divergeAt {
			hash = "x"
		}
		frames[i] = ir.FrameRecord{RunID: run, Seq: seq, Hash: hash}
	}
	return frames
}

package ir

// NOTE: These are store-layer records, not part of the canonical IR.
// They use auto-increment IDs for FK references.

// RuleFiring records one rule firing for audit (store-layer).
type RuleFiring struct {
	ID      int64      `json:"id"`
	RunID   string     `json:"run_id"`
	Frame   int64      `json:"frame"` // engine.frame at the tick that fired
	Ordinal int        `json:"ordinal"`
	RuleID  string     `json:"rule_id"`
	Action  ActionKind `json:"action"`
	Subject string     `json:"subject"` // variable, toggle or layer.param written
	Value   float64    `json:"value"`
}

// FrameRecord is a persisted frame hash (store-layer).
type FrameRecord struct {
	RunID string `json:"run_id"`
	Seq   int64  `json:"seq"`
	Hash  string `json:"hash"`
}

// RunRecord identifies one engine run (store-layer). Two runs with the same
// ProjectHash, Seed and DT must produce identical frame hashes.
type RunRecord struct {
	ID            string  `json:"id"`
	Project       string  `json:"project"`
	ProjectHash   string  `json:"project_hash"`
	Seed          uint64  `json:"seed"`
	DT            float64 `json:"dt"`
	EngineVersion string  `json:"engine_version"`
	OpSetVersion  string  `json:"opset_version"`
}

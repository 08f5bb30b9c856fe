// Package export decides what can leave the preview runtime.
//
// The eligibility gate maps a (behavior, target) pair to EXPORTABLE,
// PREVIEW_ONLY or BLOCKED. The parity validator checks a whole project
// against one target's op-set and numeric model. Both are pure functions of
// their inputs and safe to run concurrently with ticks and with each other.
package export

import (
	"fmt"

	"github.com/roach88/ledcore/internal/ir"
)

// Catalog supplies behavior capabilities. *behavior.Registry satisfies it.
type Catalog interface {
	Capabilities(id string) (ir.BehaviorCapabilities, bool)
	IDs() []string
}

// TargetSource supplies export targets. *targets.Registry satisfies it.
type TargetSource interface {
	Lookup(id string) (ir.ExportTarget, bool)
	IDs() []string
}

// Eligibility applies the gate policy to one pair, in order:
//
//	(a) no firmware mapping          → BLOCKED "not exportable"
//	(b) preview-only by design       → PREVIEW_ONLY
//	(c) target lacks matrix, audio or memory the behavior requires → BLOCKED
//	(d) otherwise                    → EXPORTABLE
func Eligibility(caps ir.BehaviorCapabilities, t ir.ExportTarget) ir.EligibilityResult {
	res := ir.EligibilityResult{
		BehaviorID:          caps.ID,
		TargetID:            t.ID,
		BehaviorFingerprint: ir.BehaviorFingerprint(caps),
		TargetFingerprint:   ir.TargetFingerprint(t),
	}
	switch {
	case !caps.FirmwareMapping:
		res.Status = ir.StatusBlocked
		res.Reason = "not exportable: no firmware mapping"
	case caps.PreviewOnly:
		res.Status = ir.StatusPreviewOnly
		res.Reason = "preview-only by design"
		if caps.PreviewOnlyReason != "" {
			res.Reason += ": " + caps.PreviewOnlyReason
		}
	case caps.RequiresMatrix && !t.SupportsMatrix:
		res.Status = ir.StatusBlocked
		res.Reason = "target lacks capability: matrix"
	case caps.RequiresAudio && !t.SupportsAudio:
		res.Status = ir.StatusBlocked
		res.Reason = "target lacks capability: audio"
	case caps.MinMemory.Rank() > t.MemoryClass.Rank():
		res.Status = ir.StatusBlocked
		res.Reason = fmt.Sprintf("target lacks capability: memory (%s < %s)", memoryName(t.MemoryClass), caps.MinMemory)
	default:
		res.Status = ir.StatusExportable
	}
	return res
}

func memoryName(c ir.MemoryClass) string {
	if c == "" {
		return "unknown"
	}
	return string(c)
}

// Gate evaluates eligibility by id. It is total: every query returns a
// result, and unknown ids are BLOCKED.
type Gate struct {
	catalog Catalog
	targets TargetSource
}

// NewGate creates a gate over a behavior catalog and a target source.
func NewGate(c Catalog, t TargetSource) *Gate {
	return &Gate{catalog: c, targets: t}
}

// Check returns the eligibility of behaviorID on targetID.
func (g *Gate) Check(behaviorID, targetID string) ir.EligibilityResult {
	caps, okB := g.catalog.Capabilities(behaviorID)
	t, okT := g.targets.Lookup(targetID)
	switch {
	case !okB:
		return ir.EligibilityResult{
			BehaviorID: behaviorID,
			TargetID:   targetID,
			Status:     ir.StatusBlocked,
			Reason:     "unknown behavior" + hint(behaviorID, g.catalog.IDs()),
		}
	case !okT:
		return ir.EligibilityResult{
			BehaviorID:          behaviorID,
			TargetID:            targetID,
			Status:              ir.StatusBlocked,
			Reason:              "unknown target" + hint(targetID, g.targets.IDs()),
			BehaviorFingerprint: ir.BehaviorFingerprint(caps),
		}
	}
	return Eligibility(caps, t)
}

// Matrix returns len(behaviorIDs)*len(targetIDs) results, behavior-major.
// Nil id lists mean every known behavior or target.
func (g *Gate) Matrix(behaviorIDs, targetIDs []string) []ir.EligibilityResult {
	if behaviorIDs == nil {
		behaviorIDs = g.catalog.IDs()
	}
	if targetIDs == nil {
		targetIDs = g.targets.IDs()
	}
	out := make([]ir.EligibilityResult, 0, len(behaviorIDs)*len(targetIDs))
	for _, b := range behaviorIDs {
		for _, t := range targetIDs {
			out = append(out, g.Check(b, t))
		}
	}
	return out
}

func hint(want string, candidates []string) string {
	if s := ir.Suggest(want, candidates); s != "" {
		return fmt.Sprintf(" (did you mean %q?)", s)
	}
	return ""
}

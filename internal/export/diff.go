package export

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ledcore/internal/ir"
)

// ErrEligibilityRegression is returned by EligibilityDiff.Err when a pair
// went from EXPORTABLE to BLOCKED while neither the behavior nor the target
// changed.
var ErrEligibilityRegression = errors.New("eligibility regression")

// Change is one (behavior, target) pair whose status differs between two
// eligibility matrices.
type Change struct {
	BehaviorID      string               `json:"behavior_id"`
	TargetID        string               `json:"target_id"`
	From            ir.EligibilityStatus `json:"from"`
	To              ir.EligibilityStatus `json:"to"`
	Reason          string               `json:"reason,omitempty"`
	BehaviorChanged bool                 `json:"behavior_changed"`
	TargetChanged   bool                 `json:"target_changed"`
}

// Regression reports whether the change is an unexplained EXPORTABLE to
// BLOCKED flip.
func (c Change) Regression() bool {
	return c.From == ir.StatusExportable && c.To == ir.StatusBlocked &&
		!c.BehaviorChanged && !c.TargetChanged
}

// EligibilityDiff compares two releases' eligibility matrices.
type EligibilityDiff struct {
	Changes     []Change               `json:"changes"`
	Regressions []Change               `json:"regressions"`
	Added       []ir.EligibilityResult `json:"added"`
	Removed     []ir.EligibilityResult `json:"removed"`
}

// Err returns ErrEligibilityRegression wrapped with the offending pairs, or
// nil.
func (d EligibilityDiff) Err() error {
	if len(d.Regressions) == 0 {
		return nil
	}
	pairs := make([]string, len(d.Regressions))
	for i, r := range d.Regressions {
		pairs[i] = r.BehaviorID + "@" + r.TargetID
	}
	return fmt.Errorf("%w: %s", ErrEligibilityRegression, strings.Join(pairs, ", "))
}

type pairKey struct{ behavior, target string }

// DiffEligibility compares prev and cur. Output is sorted by behavior id,
// then target id.
func DiffEligibility(prev, cur []ir.EligibilityResult) EligibilityDiff {
	before := make(map[pairKey]ir.EligibilityResult, len(prev))
	for _, r := range prev {
		before[pairKey{r.BehaviorID, r.TargetID}] = r
	}
	seen := make(map[pairKey]bool, len(cur))

	var d EligibilityDiff
	for _, r := range cur {
		k := pairKey{r.BehaviorID, r.TargetID}
		seen[k] = true
		old, ok := before[k]
		if !ok {
			d.Added = append(d.Added, r)
			continue
		}
		if old.Status == r.Status {
			continue
		}
		c := Change{
			BehaviorID:      r.BehaviorID,
			TargetID:        r.TargetID,
			From:            old.Status,
			To:              r.Status,
			Reason:          r.Reason,
			BehaviorChanged: old.BehaviorFingerprint != r.BehaviorFingerprint,
			TargetChanged:   old.TargetFingerprint != r.TargetFingerprint,
		}
		d.Changes = append(d.Changes, c)
		if c.Regression() {
			d.Regressions = append(d.Regressions, c)
		}
	}
	for _, r := range prev {
		if !seen[pairKey{r.BehaviorID, r.TargetID}] {
			d.Removed = append(d.Removed, r)
		}
	}

	byChange := func(a, b Change) int {
		if c := strings.Compare(a.BehaviorID, b.BehaviorID); c != 0 {
			return c
		}
		return strings.Compare(a.TargetID, b.TargetID)
	}
	byResult := func(a, b ir.EligibilityResult) int {
		if c := strings.Compare(a.BehaviorID, b.BehaviorID); c != 0 {
			return c
		}
		return strings.Compare(a.TargetID, b.TargetID)
	}
	slices.SortFunc(d.Changes, byChange)
	slices.SortFunc(d.Regressions, byChange)
	slices.SortFunc(d.Added, byResult)
	slices.SortFunc(d.Removed, byResult)
	return d
}

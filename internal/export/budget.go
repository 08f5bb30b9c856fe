package export

import (
	"fmt"

	"github.com/roach88/ledcore/internal/ir"
)

// RAM model constants, in bytes.
const (
	bytesPerLedFrame   = 3 // framebuffer
	bytesPerLedScratch = 3 // compositing scratch
	bytesPerLedState   = 1 // per-LED behavior state
	ramOverhead        = 768
)

// CPU classes.
const (
	CPULight  = "light"
	CPUMedium = "medium"
	CPUHeavy  = "heavy"
)

// Estimate is a conservative resource estimate of a project on a target.
// It drives warnings and gates, not exact sizing.
type Estimate struct {
	Leds     int    `json:"leds"`
	Layers   int    `json:"layers"`
	RAMBytes int    `json:"ram_bytes"`
	CPUClass string `json:"cpu_class"`

	RAMLimit           int `json:"ram_limit,omitempty"`
	MaxLedsHard        int `json:"max_leds_hard,omitempty"`
	MaxLedsRecommended int `json:"max_leds_recommended,omitempty"`
}

// EstimateBudget estimates p on t and returns the budget issues: exceeding
// the hard LED limit or the RAM limit blocks, exceeding the recommended LED
// count warns.
func EstimateBudget(p ir.Project, t ir.ExportTarget) (Estimate, []Issue) {
	layers := 0
	for _, l := range p.Layers {
		if l.Enabled {
			layers++
		}
	}
	est := Estimate{
		Leds:               p.Leds,
		Layers:             layers,
		RAMBytes:           p.Leds*(bytesPerLedFrame+bytesPerLedScratch+bytesPerLedState) + ramOverhead,
		CPUClass:           CPULight,
		RAMLimit:           t.RAMBytes,
		MaxLedsHard:        t.MaxLedsHard,
		MaxLedsRecommended: t.MaxLedsRecommended,
	}
	if layers >= 4 || p.Leds >= 300 {
		est.CPUClass = CPUMedium
	}
	if layers >= 7 || p.Leds >= 600 {
		est.CPUClass = CPUHeavy
	}

	var issues []Issue
	if t.MaxLedsHard > 0 && p.Leds > t.MaxLedsHard {
		issues = append(issues, blocking(ir.ErrCodeCapabilityMismatch, t.ID,
			fmt.Sprintf("LED count %d exceeds target hard limit %d", p.Leds, t.MaxLedsHard)))
	}
	if t.RAMBytes > 0 && est.RAMBytes > t.RAMBytes {
		issues = append(issues, blocking(ir.ErrCodeCapabilityMismatch, t.ID,
			fmt.Sprintf("estimated RAM %d bytes exceeds limit %d bytes", est.RAMBytes, t.RAMBytes)))
	}
	if t.MaxLedsRecommended > 0 && p.Leds > t.MaxLedsRecommended {
		issues = append(issues, warning(t.ID,
			fmt.Sprintf("LED count %d exceeds target recommended max %d", p.Leds, t.MaxLedsRecommended)))
	}
	return est, issues
}

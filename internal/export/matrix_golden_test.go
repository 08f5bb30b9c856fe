package export_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/behavior/builtin"
	"github.com/roach88/ledcore/internal/export"
	"github.com/roach88/ledcore/internal/targets"
)

// The builtin matrix is checked in so that any status flip between
// releases shows up as a golden diff. Regenerate with
//
//	go test ./internal/export -run TestBuiltinMatrixGolden -update
func TestBuiltinMatrixGolden(t *testing.T) {
	treg, err := targets.Builtin()
	require.NoError(t, err)

	var buf bytes.Buffer
	for _, r := range export.NewGate(builtin.NewRegistry(), treg).Matrix(nil, nil) {
		fmt.Fprintf(&buf, "%s@%s: %s", r.BehaviorID, r.TargetID, r.Status)
		if r.Reason != "" {
			fmt.Fprintf(&buf, " (%s)", r.Reason)
		}
		buf.WriteByte('\n')
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "builtin_matrix", buf.Bytes())
}

package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledcore/internal/ir"
	"github.com/roach88/ledcore/internal/rules"
)

func TestMarshalTrace_Canonical(t *testing.T) {
	r := NewResult()
	r.RunID = "run-1"
	r.Trace = []TickTrace{
		{Seq: 1, DT: 0.1, Hash: "sha256:aa", Fired: []rules.Applied{{RuleID: "A", Kind: ir.ActionAddVar, Subject: "x", Value: 1}}},
		{Seq: 2, DT: 0.1, Hash: "sha256:bb", Faults: []string{"boom"}},
	}

	got, err := MarshalTrace("tiny", r)
	require.NoError(t, err)

	want := `{"run_id":"run-1","scenario_name":"tiny","trace":[` +
		`{"dt":"0.1","fired":[{"kind":"add_var","rule_id":"A","subject":"x","value":"1"}],"hash":"sha256:aa","seq":1},` +
		`{"dt":"0.1","faults":["boom"],"fired":[],"hash":"sha256:bb","seq":2}]}`
	assert.Equal(t, want, string(got))
}

func TestMarshalTrace_Stable(t *testing.T) {
	a, err := Run(loadTestdata(t, "rule_ordering"))
	require.NoError(t, err)
	b, err := Run(loadTestdata(t, "rule_ordering"))
	require.NoError(t, err)

	ja, err := MarshalTrace("rule_ordering", a)
	require.NoError(t, err)
	jb, err := MarshalTrace("rule_ordering", b)
	require.NoError(t, err)
	assert.Equal(t, ja, jb)
	assert.True(t, strings.HasPrefix(string(ja), `{"run_id":"test-run-default"`))
}

// The golden files are written into a temp dir first, so this checks that
// a re-run reproduces the recorded trace byte for byte.
func TestRunWithGolden_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"rule_ordering", "jittered_replay"} {
		t.Run(name, func(t *testing.T) {
			sc := loadTestdata(t, name)
			first, err := Run(sc)
			require.NoError(t, err)
			data, err := MarshalTrace(sc.Name, first)
			require.NoError(t, err)

			g := goldie.New(t, goldie.WithFixtureDir(dir), goldie.WithNameSuffix(".golden"))
			require.NoError(t, g.Update(t, sc.Name, data))
			_, err = os.Stat(filepath.Join(dir, sc.Name+".golden"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, sc, goldie.WithFixtureDir(dir))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestAssertGolden_ExistingResult(t *testing.T) {
	dir := t.TempDir()
	result, err := Run(loadTestdata(t, "toggle_edges"))
	require.NoError(t, err)

	data, err := MarshalTrace("edges", result)
	require.NoError(t, err)
	g := goldie.New(t, goldie.WithFixtureDir(dir), goldie.WithNameSuffix(".golden"))
	require.NoError(t, g.Update(t, "edges", data))

	require.NoError(t, AssertGolden(t, "edges", result, goldie.WithFixtureDir(dir)))
}

func TestRunWithGolden_RunError(t *testing.T) {
	sc := &Scenario{Name: "broken", Project: filepath.Join(t.TempDir(), "nope.cue"), Steps: []Step{{Ticks: 1}}}
	_, err := RunWithGolden(t, sc, goldie.WithFixtureDir(t.TempDir()))
	require.Error(t, err)
}

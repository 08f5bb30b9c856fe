package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NewError(ErrCodeUnresolvedReference, "rule r1", "unknown signal %q", "audio.enrgy")
	wrapped := fmt.Errorf("load: %w", err)

	assert.True(t, errors.Is(wrapped, ErrUnresolvedReference))
	assert.False(t, errors.Is(wrapped, ErrUnknownSignal))
	assert.True(t, IsUnresolvedReference(wrapped))
	assert.Equal(t, ErrCodeUnresolvedReference, CodeOf(wrapped))
}

func TestErrorMessage(t *testing.T) {
	err := &Error{
		Code:       ErrCodeUnknownSignal,
		Subject:    "audio.enrgy",
		Message:    "not registered",
		Suggestion: "audio.energy",
	}
	assert.Equal(t, `UNKNOWN_SIGNAL: audio.enrgy: not registered (did you mean "audio.energy"?)`, err.Error())
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.False(t, IsTornFrame(nil))
}

func TestCompareOp(t *testing.T) {
	tests := []struct {
		op   CompareOp
		a, b float64
		want bool
	}{
		{OpGT, 2, 1, true},
		{OpGT, 1, 1, false},
		{OpGE, 1, 1, true},
		{OpLT, 0, 1, true},
		{OpLE, 1, 1, true},
		{OpEQ, 1, 1, true},
		{OpEQ, 1, 2, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v%s%v", tt.a, tt.op, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Compare(tt.a, tt.b))
		})
	}
}

func TestMemoryClassRank(t *testing.T) {
	assert.Less(t, MemoryTiny.Rank(), MemorySmall.Rank())
	assert.Less(t, MemorySmall.Rank(), MemoryMedium.Rank())
	assert.Less(t, MemoryMedium.Rank(), MemoryLarge.Rank())
	assert.Equal(t, 0, MemoryClass("huge").Rank())
}

func TestZoneLen(t *testing.T) {
	assert.Equal(t, 4, Zone{Start: 2, End: 6}.Len())
	assert.Equal(t, 0, Zone{Start: 6, End: 2}.Len())
}

func TestSuggest(t *testing.T) {
	ids := []string{"audio.energy", "audio.mono0", "time.t"}
	assert.Equal(t, "audio.energy", Suggest("audio.enrgy", ids))
	assert.Equal(t, "time.t", Suggest("time.x", ids))
	assert.Equal(t, "", Suggest("completely.different", ids))
}

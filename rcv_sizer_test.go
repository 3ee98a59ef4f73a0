package tcpendpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRcvSizerDefaultsWhenInitialLengthNonPositive(t *testing.T) {
	s := NewRcvSizer(0, false)
	assert.Equal(t, 8<<10, s.TargetLength())
}

func TestRcvSizerGrowsOnFullBurst(t *testing.T) {
	s := NewRcvSizer(1000, false)
	s.RecordBytesRead(900)
	s.FinishEstimate()
	assert.Equal(t, 2000, s.TargetLength())
}

func TestRcvSizerDecaysOnQuietRead(t *testing.T) {
	s := NewRcvSizer(1000, false)
	s.RecordBytesRead(10)
	s.FinishEstimate()
	assert.Less(t, s.TargetLength(), 1000)
	assert.Greater(t, s.TargetLength(), 900)
}

func TestRcvSizerUpdateRcvLowatDisabled(t *testing.T) {
	s := NewRcvSizer(1000, false)
	remaining, changed := s.UpdateRcvLowat(100000, 50000, false)
	assert.Zero(t, remaining)
	assert.False(t, changed)
}

func TestRcvSizerUpdateRcvLowatClampsToWindowAndFloor(t *testing.T) {
	s := NewRcvSizer(1000, true)

	remaining, changed := s.UpdateRcvLowat(100, 50000, false)
	assert.Zero(t, remaining) // below rcvLowatFloor
	assert.False(t, changed)

	remaining, changed = s.UpdateRcvLowat(32<<20, 32<<20, false)
	assert.Equal(t, rcvLowatMaxWindow, remaining)
	assert.True(t, changed)
}

func TestRcvSizerUpdateRcvLowatBothLowButUnequalNoChange(t *testing.T) {
	s := NewRcvSizer(1000, true)
	// setRcvLowat starts at its zero value. Craft remaining=1 (via the
	// zero-copy-disabled floor subtraction) so the two values are both <= 1
	// but not equal to each other.
	remaining, changed := s.UpdateRcvLowat(rcvLowatFloor+1, rcvLowatFloor+1, true)
	require.Equal(t, 1, remaining)
	assert.False(t, changed) // still don't know the RPC size; no real SO_RCVLOWAT syscall
}

func TestRcvSizerUpdateRcvLowatNoChangeWhenSame(t *testing.T) {
	s := NewRcvSizer(1000, true)
	remaining, changed := s.UpdateRcvLowat(32<<20, 32<<20, false)
	assert.True(t, changed)
	s.NoteAppliedRcvLowat(remaining)

	remaining2, changed2 := s.UpdateRcvLowat(32<<20, 32<<20, false)
	assert.Equal(t, remaining, remaining2)
	assert.False(t, changed2)
}

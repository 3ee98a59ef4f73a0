package tcpendpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroCopyRegistryEnabledRequiresBoth(t *testing.T) {
	assert.False(t, NewZeroCopyRegistry(false, true, 4, 0).Enabled())
	assert.False(t, NewZeroCopyRegistry(true, false, 4, 0).Enabled())
	assert.True(t, NewZeroCopyRegistry(true, true, 4, 0).Enabled())
}

func TestZeroCopyRegistryGetSendRecordRespectsInFlightCeiling(t *testing.T) {
	z := NewZeroCopyRegistry(true, true, 1, 0)

	rec := z.GetSendRecord(nil)
	require.NotNil(t, rec)
	assert.Nil(t, z.GetSendRecord(nil))

	z.Unref(rec)
	assert.NotNil(t, z.GetSendRecord(nil))
}

func TestZeroCopyRegistryShutdownBlocksCheckout(t *testing.T) {
	z := NewZeroCopyRegistry(true, true, 4, 0)
	z.Shutdown()
	assert.Nil(t, z.GetSendRecord(nil))
}

func TestZeroCopyRegistrySequenceRoundTrip(t *testing.T) {
	z := NewZeroCopyRegistry(true, true, 4, 0)
	rec := z.GetSendRecord(nil)
	require.NotNil(t, rec)

	z.NoteSend(rec)
	seq := z.AssignSequence(rec)

	got := z.ReleaseSendRecord(seq)
	require.Same(t, rec, got)
	assert.Nil(t, z.ReleaseSendRecord(seq)) // already released

	z.Unref(rec) // send's hold
	assert.False(t, z.AllSendRecordsEmpty())
	z.Unref(rec) // caller's hold
	assert.True(t, z.AllSendRecordsEmpty())
}

func TestZeroCopyRegistryMemConstrainedTransition(t *testing.T) {
	z := NewZeroCopyRegistry(true, true, 4, 0)

	assert.False(t, z.UpdateZeroCopyOptMemStateAfterSend(false))
	assert.True(t, z.UpdateZeroCopyOptMemStateAfterSend(true)) // inFlight == 0

	assert.True(t, z.UpdateZeroCopyOptMemStateAfterFree())
	assert.False(t, z.UpdateZeroCopyOptMemStateAfterFree()) // already cleared
}

func TestZeroCopyRegistryNotConstrainedWhenInFlight(t *testing.T) {
	z := NewZeroCopyRegistry(true, true, 4, 0)
	rec := z.GetSendRecord(nil)
	require.NotNil(t, rec)

	assert.False(t, z.UpdateZeroCopyOptMemStateAfterSend(true))
}

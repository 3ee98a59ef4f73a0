package tcpendpoint

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/relaycore/tcpendpoint/buffer"
)

func TestWriteEmptyBufferCompletesSynchronously(t *testing.T) {
	e, _, _ := newTestEndpoint(t)
	sync := e.Write(buffer.New(), func(*Status) { t.Fatal("callback should not fire") }, WriteArgs{})
	assert.True(t, sync)
}

func TestWriteSendsBytesSynchronously(t *testing.T) {
	e, _, peer := newTestEndpoint(t)

	data := buffer.New()
	data.AppendCopy([]byte("payload"))
	sync := e.Write(data, func(*Status) { t.Fatal("should complete synchronously") }, WriteArgs{})
	require.True(t, sync)
	assert.Equal(t, int64(7), e.BytesCounter())

	got := make([]byte, 7)
	n, err := unix.Read(peer, got)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got[:n]))
}

func TestWritePanicsOnOverlappingCalls(t *testing.T) {
	e, _, _ := newTestEndpoint(t)
	atomic.StoreInt32(&e.writeInFlight, 1) // simulate a write already in progress

	assert.Panics(t, func() {
		e.Write(buffer.New(), func(*Status) {}, WriteArgs{})
	})
}

func TestWriteOnEOFStatusAfterShutdown(t *testing.T) {
	e, fp, _ := newTestEndpoint(t)
	e.MaybeShutdown(StatusCancelled("closing"))

	var got *Status
	sync := e.Write(buffer.New(), func(s *Status) { got = s }, WriteArgs{})
	assert.False(t, sync)
	require.NotNil(t, got)
	assert.Equal(t, CodeUnavailable, got.Code)
	assert.True(t, fp.orphaned)
}

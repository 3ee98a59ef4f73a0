package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/tcpendpoint/test"
)

func TestNewEndpointSettingsFromConfig_Defaults(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	require.NoError(t, c.LoadString("endpoint: {}"))

	s := NewEndpointSettingsFromConfig(l, c)
	assert.False(t, s.ZeroCopyEnabled)
	assert.Equal(t, 1024, s.ZeroCopyMaxSimultaneousSends)
	assert.True(t, s.Features.FrameSizeTuning)
	assert.True(t, s.Features.RcvLowatTuning)
	assert.Zero(t, s.KeepAlive)
}

func TestNewEndpointSettingsFromConfig_Overrides(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	require.NoError(t, c.LoadString(`
endpoint:
  read_chunk_bytes: 65536
  zerocopy:
    enabled: true
    send_bytes_threshold: 32768
  features:
    frame_size_tuning: false
  keepalive: 30s
`))

	s := NewEndpointSettingsFromConfig(l, c)
	assert.Equal(t, 65536, s.ReadChunkSize)
	assert.True(t, s.ZeroCopyEnabled)
	assert.Equal(t, 32768, s.ZeroCopySendBytesThreshold)
	assert.False(t, s.Features.FrameSizeTuning)
	assert.True(t, s.Features.RcvLowatTuning)
	assert.Equal(t, 30*time.Second, s.KeepAlive)
}

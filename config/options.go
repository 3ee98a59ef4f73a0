package config

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaycore/tcpendpoint"
)

// EndpointSettings is tcpendpoint.Options plus the pieces that only make
// sense at the process level (keepalive), read from the
// endpoint.* namespace the way Punchy reads punchy.* out of a *C.
type EndpointSettings struct {
	tcpendpoint.Options

	KeepAlive time.Duration
}

// NewEndpointSettingsFromConfig builds an EndpointSettings out of c.
// Chunk sizes left unset stay zero, so tcpendpoint's own defaults apply;
// the zero-copy and feature keys carry defaults of their own here.
// It registers no reload callback: unlike Punchy's booleans, the
// low-level socket tuning here is only meaningful at connection setup and
// is not meant to change out from under a live endpoint.
func NewEndpointSettingsFromConfig(l *logrus.Logger, c *C) *EndpointSettings {
	s := &EndpointSettings{}
	s.Logger = l

	s.ReadChunkSize = c.GetInt("endpoint.read_chunk_bytes", 0)
	s.MinReadChunkSize = c.GetInt("endpoint.min_read_chunk_bytes", 0)
	s.MaxReadChunkSize = c.GetInt("endpoint.max_read_chunk_bytes", 0)

	s.ZeroCopyEnabled = c.GetBool("endpoint.zerocopy.enabled", false)
	s.ZeroCopyMaxSimultaneousSends = c.GetInt("endpoint.zerocopy.max_simultaneous_sends", 1024)
	s.ZeroCopySendBytesThreshold = c.GetInt("endpoint.zerocopy.send_bytes_threshold", 16*1024)

	s.Features.FrameSizeTuning = c.GetBool("endpoint.features.frame_size_tuning", true)
	s.Features.RcvLowatTuning = c.GetBool("endpoint.features.rcv_lowat_tuning", true)

	s.KeepAlive = c.GetDuration("endpoint.keepalive", 0)

	return s
}

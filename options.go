package tcpendpoint

import "github.com/sirupsen/logrus"

// Options configures an endpoint at construction time. All fields are
// read once when the endpoint is built; none of them are meant to change
// for the life of the endpoint.
type Options struct {
	// Quota is charged for every chunk the read path allocates. When nil,
	// NoopQuota is used: nothing is charged and Pressure is always 0.
	Quota MemoryQuota

	// ReadChunkSize is the default allocation granularity when neither
	// MinReadChunkSize nor MaxReadChunkSize constrains it.
	ReadChunkSize int
	// MinReadChunkSize and MaxReadChunkSize are stored but not applied:
	// RcvSizer's adaptive target length is not clamped to either.
	MinReadChunkSize int
	MaxReadChunkSize int

	// ZeroCopyEnabled requests SO_ZEROCOPY negotiation at construction.
	// Actual use is additionally gated on the kernel accepting the
	// sockopt (ZeroCopyRegistry.Enabled).
	ZeroCopyEnabled bool
	// ZeroCopyMaxSimultaneousSends bounds ZeroCopyRegistry's in-flight
	// record ceiling.
	ZeroCopyMaxSimultaneousSends int
	// ZeroCopySendBytesThreshold is ZeroCopyRegistry.ThresholdBytes(): a
	// write below this size always takes the copy path.
	ZeroCopySendBytesThreshold int

	// Executor runs deferred completions. Defaults to a small goroutine
	// pool if nil.
	Executor Executor

	// Features holds the process-wide feature flags, read once.
	Features FeatureFlags

	// Logger receives structured diagnostics (the zero-copy
	// memory-constrained warning and the error-queue control-message
	// truncation and parse-failure messages). Defaults to logrus's
	// standard logger.
	Logger *logrus.Logger
}

// FeatureFlags are read once at process startup, never per-call.
type FeatureFlags struct {
	// FrameSizeTuning enables MinProgressSize-driven read completion
	// (Read's read_hint_bytes). RcvSizer adapts its target length whether
	// or not this is set.
	// When false, MinProgressSize is pinned to 1 and every read completes
	// as soon as any bytes arrive.
	FrameSizeTuning bool
	// RcvLowatTuning enables adaptive SO_RCVLOWAT tuning
	// (RcvSizer.UpdateRcvLowat). When false, SO_RCVLOWAT is never
	// touched.
	RcvLowatTuning bool
}

func (o *Options) readChunkSize() int {
	if o.ReadChunkSize > 0 {
		return o.ReadChunkSize
	}
	return 8 << 10
}

func (o *Options) minReadChunkSize() int {
	if o.MinReadChunkSize > 0 {
		return o.MinReadChunkSize
	}
	return o.readChunkSize()
}

func (o *Options) maxReadChunkSize() int {
	if o.MaxReadChunkSize > 0 {
		return o.MaxReadChunkSize
	}
	return 4 << 20
}

func (o *Options) executor() Executor {
	if o.Executor != nil {
		return o.Executor
	}
	return NewGoroutinePoolExecutor(4)
}

func (o *Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

func (o *Options) quota() MemoryQuota {
	if o.Quota != nil {
		return o.Quota
	}
	return NoopQuota{}
}

// ReadHints accompanies a Read call.
type ReadHints struct {
	// ReadHintBytes is the number of bytes the caller expects before its
	// callback should fire; used as MinProgressSize when FrameSizeTuning
	// is enabled.
	ReadHintBytes int
}

// WriteArgs accompanies a Write call.
type WriteArgs struct {
	// MetricsSink, if non-nil and the poller can track errors, receives
	// kernel timestamps for the bytes in this write via TracedBufferList.
	MetricsSink TimestampSink
}

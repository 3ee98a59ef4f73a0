package tcpendpoint

import (
	"sync"
	"time"
)

// TimestampKind identifies which point in a packet's kernel-side lifecycle
// a SO_TIMESTAMPING record describes, mirroring Linux's SCM_TSTAMP_*
// values reported through the socket error queue.
type TimestampKind int

const (
	// TimestampScheduled is when the packet left the qdisc.
	TimestampScheduled TimestampKind = iota
	// TimestampSent is when the driver handed the packet to the NIC.
	TimestampSent
	// TimestampAcked is when the TCP stack retired the bytes because the
	// peer acknowledged them.
	TimestampAcked
)

// Timestamps is what a TracedBufferList entry delivers to its sink: which
// generation of kernel timestamp fired, the byte offset it watermarks,
// when it happened, and whatever SCM_TIMESTAMPING_OPT_STATS the kernel
// attached to that completion (nil if the kernel sent none for this
// timestamp, which is normal — OPT_STATS does not accompany every one).
type Timestamps struct {
	Kind       TimestampKind
	ByteOffset uint32
	When       time.Time
	OptStats   OptStats
}

// TimestampSink receives Timestamps for a write. WriteArgs supplies one
// per call; nil means the caller does not want timestamps even if the
// poller supports SO_TIMESTAMPING.
type TimestampSink interface {
	RecordTimestamps(Timestamps)
}

type tracedEntry struct {
	endByteOffset uint32
	sink          TimestampSink
}

// TracedBufferList is the pending queue of sends awaiting kernel
// timestamps: an ordered list of (end_byte_offset, sink) entries. Entries
// are enqueued in send order, so end_byte_offset is non-decreasing along
// the queue; a completion watermark therefore always resolves a prefix of
// it. AddNewEntry must run before the corresponding send is issued so a
// timestamp that arrives unusually fast can never race ahead of its
// registration.
type TracedBufferList struct {
	mu       sync.Mutex
	entries  []tracedEntry
	shutdown bool
}

// NewTracedBufferList builds an empty list.
func NewTracedBufferList() *TracedBufferList {
	return &TracedBufferList{}
}

// AddNewEntry records that endByteOffset is the tail of a write whose
// timestamp completions sink wants to see. A nil sink is a no-op.
func (l *TracedBufferList) AddNewEntry(endByteOffset uint32, sink TimestampSink) {
	if sink == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shutdown {
		return
	}
	l.entries = append(l.entries, tracedEntry{endByteOffset: endByteOffset, sink: sink})
}

// ProcessTimestamp advances the queue past every entry whose
// end_byte_offset is at or below watermark, delivering ts (and optStats,
// if the kernel attached any to this completion) to each such entry's
// sink in order before popping it.
func (l *TracedBufferList) ProcessTimestamp(kind TimestampKind, watermark uint32, optStats OptStats, when time.Time) {
	l.mu.Lock()
	i := 0
	for i < len(l.entries) && l.entries[i].endByteOffset <= watermark {
		i++
	}
	ready := l.entries[:i]
	l.entries = l.entries[i:]
	// Copy out before unlocking: sinks run outside the lock so a slow
	// sink callback never blocks the error-queue drain.
	delivered := make([]tracedEntry, len(ready))
	copy(delivered, ready)
	l.mu.Unlock()

	for _, e := range delivered {
		e.sink.RecordTimestamps(Timestamps{Kind: kind, ByteOffset: e.endByteOffset, When: when, OptStats: optStats})
	}
}

// Shutdown delivers a terminal event to every still-pending sink and
// refuses further registrations.
func (l *TracedBufferList) Shutdown() {
	l.mu.Lock()
	l.shutdown = true
	pending := l.entries
	l.entries = nil
	l.mu.Unlock()

	for _, e := range pending {
		e.sink.RecordTimestamps(Timestamps{Kind: TimestampAcked, ByteOffset: e.endByteOffset})
	}
}

// Pending reports how many writes are currently awaiting completion,
// mostly for tests.
func (l *TracedBufferList) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

package tcpendpoint

import (
	"net/netip"
	"sync"
	"sync/atomic"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/relaycore/tcpendpoint/buffer"
)

// EndpointCore is the POSIX stream-socket endpoint: it owns a connected
// descriptor for its lifetime (reached through Poller/PosixInterface),
// drives the read and write loops, reconciles zero-copy completions and
// kernel timestamps off the error queue, and exposes the single-owner
// Read/Write/MaybeShutdown contract described on those methods.
type EndpointCore struct {
	ref int32 // atomic; endpoint is finalized when this reaches zero

	poller Poller
	iface  PosixInterface
	opts   Options

	// --- read side, guarded by readMu ---
	readMu                 sync.Mutex
	incoming               *buffer.Buffer
	lastReadBuffer         *buffer.Buffer
	readCB                 func(*Status)
	firstRead              bool
	minProgressSize        int
	inqCapable             bool
	inq                    int
	readHasPostedReclaimer bool
	readQuotaOutstanding   int64 // atomic; bytes charged to opts.quota() not yet released

	// --- write side, single-writer-in-flight ---
	writeInFlight int32 // atomic 0/1
	outgoing      *buffer.Buffer
	writePlan     *IoVecPlan
	writeRecord   *ZeroCopyRecord
	writeCB       func(*Status)
	writeTSSink   TimestampSink

	zerocopy *ZeroCopyRegistry
	traced   *TracedBufferList
	rcvSizer *RcvSizer
	metrics  *MetricSet

	bytesCounter int64 // atomic; bytes accepted by the kernel, ever

	tsCapable       bool
	socketTSEnabled int32 // atomic bool

	stopErrorNotification int32 // atomic bool; guards MaybeShutdown idempotency

	lastConstrainedLogUnixNano int64 // atomic; rate-limits the ENOBUFS diagnostic

	errNotifyRefHeld    bool   // set once at construction iff armError() took a ref
	unregisterReclaimer func() // deregisters MaybeReclaim from opts.quota()
}

// New constructs an endpoint over an already-connected handle. It
// negotiates zero-copy against the kernel, and if the poller supports
// error tracking, arms the first error-queue edge immediately.
func New(poller Poller, opts Options) *EndpointCore {
	iface := poller.Interface()

	kernelAcceptedZC := false
	if opts.ZeroCopyEnabled {
		kernelAcceptedZC = iface.SetSockOptInt(solSocket, soZeroCopy, 1) == nil
	}

	e := &EndpointCore{
		ref:       1,
		poller:    poller,
		iface:     iface,
		opts:      opts,
		incoming:  buffer.New(),
		outgoing:  buffer.New(),
		firstRead: true,
		zerocopy: NewZeroCopyRegistry(opts.ZeroCopyEnabled, kernelAcceptedZC,
			opts.ZeroCopyMaxSimultaneousSends, opts.ZeroCopySendBytesThreshold),
		traced:      NewTracedBufferList(),
		rcvSizer:    NewRcvSizer(opts.readChunkSize(), opts.Features.RcvLowatTuning),
		tsCapable:   poller.CanTrackErrors(),
		inqCapable:  true,
		minProgressSize: 1,
	}
	e.metrics = NewMetricSet(metrics.DefaultRegistry, e.peerAddressString())
	e.unregisterReclaimer = opts.quota().RegisterReclaimer(e.MaybeReclaim)

	if poller.CanTrackErrors() {
		// Held until MaybeShutdown stops error notifications; without it
		// the endpoint could finalize while an error-queue edge is still
		// registered with the poller.
		e.ref_()
		e.errNotifyRefHeld = true
		e.armError()
	}
	return e
}

func (e *EndpointCore) peerAddressString() string {
	if a, err := e.iface.PeerAddr(); err == nil {
		return a.String()
	}
	return "unknown"
}

func (e *EndpointCore) ref_() {
	atomic.AddInt32(&e.ref, 1)
}

func (e *EndpointCore) unref_() {
	if atomic.AddInt32(&e.ref, -1) == 0 {
		e.finalize()
	}
}

func (e *EndpointCore) finalize() {
	e.poller.OrphanHandle(func() {}, nil)
}

func (e *EndpointCore) schedule(cb func(*Status), s *Status) {
	e.opts.executor().Run(func() { cb(s) })
}

// PeerAddress and LocalAddress query the underlying socket.
func (e *EndpointCore) PeerAddress() (netip.AddrPort, error) { return e.iface.PeerAddr() }
func (e *EndpointCore) LocalAddress() (netip.AddrPort, error) { return e.iface.LocalAddr() }

// GetTelemetryInfo returns the immutable metric catalog this endpoint
// writes into and a factory for sparse per-endpoint metric sets.
func (e *EndpointCore) GetTelemetryInfo() TelemetryInfo {
	return GetTelemetryInfo(metrics.DefaultRegistry)
}

// BytesCounter returns the number of bytes the kernel has accepted from
// this endpoint's sends so far.
func (e *EndpointCore) BytesCounter() int64 {
	return atomic.LoadInt64(&e.bytesCounter)
}

// MaybeShutdown marks the handle errored, disables zero-copy, drains any
// pending read/write callback with reason, and releases the poller
// registration. It is idempotent: only the first caller has any effect.
func (e *EndpointCore) MaybeShutdown(reason *Status) {
	if !atomic.CompareAndSwapInt32(&e.stopErrorNotification, 0, 1) {
		return
	}

	if e.unregisterReclaimer != nil {
		e.unregisterReclaimer()
	}

	e.zerocopy.Shutdown()
	e.drainZerocopyOnShutdown()
	e.traced.Shutdown()

	if e.errNotifyRefHeld {
		e.errNotifyRefHeld = false
		e.unref_()
	}

	e.readMu.Lock()
	readCB := e.readCB
	e.readCB = nil
	if readCB != nil {
		e.incoming.Clear()
	}
	if e.lastReadBuffer != nil {
		e.lastReadBuffer.Clear()
	}
	if outstanding := atomic.SwapInt64(&e.readQuotaOutstanding, 0); outstanding > 0 {
		e.opts.quota().Release(int(outstanding))
	}
	e.readMu.Unlock()
	if readCB != nil {
		e.schedule(readCB, reason)
		e.unref_()
	}

	if atomic.CompareAndSwapInt32(&e.writeInFlight, 1, 0) {
		writeCB := e.writeCB
		e.writeCB = nil
		if e.writeRecord != nil {
			e.zerocopy.Unref(e.writeRecord)
			e.writeRecord = nil
		}
		e.outgoing.Clear()
		if writeCB != nil {
			e.schedule(writeCB, reason)
			e.unref_()
		}
	}

	e.poller.ShutdownHandle(reason)
	e.unref_()
}

// drainZerocopyOnShutdown spins ProcessErrors until every outstanding
// zero-copy record has been acknowledged. No new zero-copy sends can be
// issued once shutdown has begun, since the registry's Shutdown stops
// GetSendRecord from handing out records, so this loop is bounded by the sends
// already in flight when shutdown began.
func (e *EndpointCore) drainZerocopyOnShutdown() {
	for !e.zerocopy.AllSendRecordsEmpty() {
		if _, keepDraining := e.processErrorsOnce(); !keepDraining {
			return
		}
	}
}

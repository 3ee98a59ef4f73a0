package tcpendpoint

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/relaycore/tcpendpoint/buffer"
)

const maxReadIovec = 64

// Read starts one read operation. It returns true iff the read completed
// synchronously without invoking cb; otherwise cb fires exactly once,
// possibly from a different goroutine, once enough bytes have arrived.
func (e *EndpointCore) Read(buf *buffer.Buffer, cb func(*Status), hints ReadHints) bool {
	e.readMu.Lock()
	if e.readCB != nil {
		e.readMu.Unlock()
		panic("tcpendpoint: overlapping Read calls")
	}

	// Reuse whatever capacity survived from the previous read.
	buf.Swap(e.lastReadBuffer_or_new())

	if e.opts.Features.FrameSizeTuning {
		e.minProgressSize = hints.ReadHintBytes
		if e.minProgressSize < 1 {
			e.minProgressSize = 1
		}
	} else {
		e.minProgressSize = 1
	}

	e.incoming = buf
	e.ref_()

	if e.firstRead || e.inq == 0 {
		e.firstRead = false
		e.readCB = cb
		e.updateRcvLowatLocked()
		e.readMu.Unlock()
		e.armReadable()
		return false
	}

	return e.driveRead(cb)
}

// driveRead runs tcpDoReadRound with readMu held for its entire duration —
// the syscall round, the incoming/readCB mutations it makes, and (on an
// incomplete round) readCB's registration all happen as one atomic step.
// The caller must enter with readMu held; driveRead always returns with it
// unlocked. This is what stops MaybeShutdown from observing readCB == nil,
// skipping the incoming clear, and then losing a callback that driveRead
// registers a moment later: MaybeShutdown takes the same mutex, so it can
// only run strictly before this round starts or strictly after readCB is
// visible.
func (e *EndpointCore) driveRead(cb func(*Status)) bool {
	complete, status := e.tcpDoReadRound()
	if !complete {
		e.readCB = cb
		e.readMu.Unlock()
		e.armReadable()
		return false
	}
	e.readMu.Unlock()
	if !status.OK() {
		e.schedule(cb, status)
		e.unref_()
		return false
	}
	e.releaseDeliveredReadQuota()
	e.unref_()
	return true
}

func (e *EndpointCore) lastReadBuffer_or_new() *buffer.Buffer {
	if e.lastReadBuffer == nil {
		e.lastReadBuffer = buffer.New()
	}
	b := e.lastReadBuffer
	e.lastReadBuffer = buffer.New()
	return b
}

// HandleRead is the poller's readable-edge callback. Like driveRead, it
// holds readMu across the whole tcpDoReadRound so MaybeShutdown can never
// interleave mid-round.
func (e *EndpointCore) HandleRead(_ *Status) {
	e.readMu.Lock()
	complete, status := e.tcpDoReadRound()
	if !complete {
		e.readMu.Unlock()
		e.armReadable()
		return
	}

	cb := e.readCB
	e.readCB = nil
	e.readMu.Unlock()

	if cb == nil {
		// Shutdown raced us and already delivered a terminal callback.
		e.unref_()
		return
	}
	if status.OK() {
		e.releaseDeliveredReadQuota()
		cb(nil)
	} else {
		cb(status)
	}
	e.unref_()
}

// tcpDoReadRound runs MaybeMakeReadSlices then TcpDoRead and folds the
// result into the completion accounting (min-progress accumulation,
// staging buffer) described for ReadPath. Callers must hold readMu: it
// reads and mutates incoming, lastReadBuffer, minProgressSize and inq
// directly, and reserveReadQuota below it can synchronously invoke
// MaybeReclaim through a BoundedQuota sweep, which relies on readMu already
// being held by this same goroutine to no-op safely via TryLock.
func (e *EndpointCore) tcpDoReadRound() (complete bool, status *Status) {
	e.maybeMakeReadSlices()
	done, n, status := e.tcpDoRead()
	if !done {
		return false, nil
	}
	if !status.OK() {
		return true, status
	}

	if e.opts.Features.FrameSizeTuning {
		e.minProgressSize -= n
		e.stageRead()
		if e.minProgressSize > 0 {
			return false, nil
		}
		e.minProgressSize = 1
		e.incoming.Swap(e.lastReadBuffer)
		return true, nil
	}

	return true, nil
}

// stageRead moves whatever was read this round into last_read_buffer so
// it accumulates across edges until min_progress_size is satisfied.
func (e *EndpointCore) stageRead() {
	if e.lastReadBuffer == nil {
		e.lastReadBuffer = buffer.New()
	}
	for _, s := range e.incoming.TakeSlices() {
		e.lastReadBuffer.AppendSlice(s)
	}
}

// maybeMakeReadSlices tops up incoming with pooled chunks so there is at
// least max(min_progress_size, 1) bytes of capacity, sized generously
// when memory is not under pressure and conservatively when it is.
func (e *EndpointCore) maybeMakeReadSlices() {
	want := e.minProgressSize
	if want < 1 {
		want = 1
	}
	pressure := e.opts.quota().Pressure()
	lowPressure := pressure < PressureReclaimThreshold
	if lowPressure {
		if target := e.rcvSizer.TargetLength(); target > want {
			want = target
		}
	}

	if e.incoming.Len() >= want {
		return
	}
	extraWanted := want - e.incoming.Len()
	if extraWanted < 1 {
		extraWanted = 1
	}

	threshold := buffer.LargeChunkSize
	if lowPressure {
		threshold = 12 << 10
	}
	chunkSize := buffer.SmallChunkSize
	if extraWanted >= threshold {
		chunkSize = buffer.LargeChunkSize
	}

	added := 0
	for added < extraWanted {
		e.incoming.AppendChunk(chunkSize)
		added += chunkSize
	}
	e.reserveReadQuota(added)
	e.readHasPostedReclaimer = true
}

// reserveReadQuota and releaseReadQuota keep readQuotaOutstanding in sync
// with every charge made against opts.quota() for read-side chunks, so
// MaybeShutdown can hand back whatever is still outstanding in one shot
// without having to reason about which buffer the bytes currently sit in.
func (e *EndpointCore) reserveReadQuota(n int) {
	if n <= 0 {
		return
	}
	e.opts.quota().Reserve(n)
	atomic.AddInt64(&e.readQuotaOutstanding, int64(n))
}

func (e *EndpointCore) releaseReadQuota(n int) {
	if n <= 0 {
		return
	}
	e.opts.quota().Release(n)
	atomic.AddInt64(&e.readQuotaOutstanding, -int64(n))
}

// releaseDeliveredReadQuota releases the charge for bytes about to be
// handed to the caller: once a read completes, those bytes are the
// caller's to manage and no longer count against this endpoint's
// outstanding reservation.
func (e *EndpointCore) releaseDeliveredReadQuota() {
	e.releaseReadQuota(e.incoming.Len())
}

// truncateIncoming trims incoming to off, releasing the quota charge for
// whatever capacity that discards.
func (e *EndpointCore) truncateIncoming(off int) {
	before := e.incoming.Len()
	e.incoming.TruncateTo(off)
	e.releaseReadQuota(before - e.incoming.Len())
}

// clearIncoming drops incoming entirely, releasing its full charge.
func (e *EndpointCore) clearIncoming() {
	e.releaseReadQuota(e.incoming.Len())
	e.incoming.Clear()
}

// MaybeReclaim drops the read side's staged buffers under memory
// pressure. It blindly clears incoming even if a read is currently
// waiting on a future edge: that is safe precisely because the read
// callback has not fired yet, so no bytes have been promised to the
// caller. readMu is what keeps this from ever racing the brief window in
// HandleRead where incoming is handed off for delivery. New builds
// registers this as a reclaimer with opts.quota(), so a BoundedQuota
// sweeping under pressure calls it directly; TryLock rather than Lock
// makes that safe even when the sweep is triggered synchronously from
// inside a Reserve call this same goroutine's own read round just made —
// skipping a reclaim attempt that can't currently run is exactly the
// "benign" behavior the caller expects, not a bug.
func (e *EndpointCore) MaybeReclaim() bool {
	if !e.readMu.TryLock() {
		return false
	}
	defer e.readMu.Unlock()
	if !e.readHasPostedReclaimer {
		return false
	}
	freed := e.incoming.Len()
	if freed > 0 {
		e.clearIncoming()
	}
	if e.lastReadBuffer != nil && e.lastReadBuffer.Len() > 0 {
		staged := e.lastReadBuffer.Len()
		freed += staged
		e.releaseReadQuota(staged)
		e.lastReadBuffer.Clear()
	}
	e.readHasPostedReclaimer = false
	return freed > 0
}

// tcpDoRead drains the readable edge: it issues recvmsg calls until
// EAGAIN or the kernel's in-queue hint says nothing more is pending,
// consuming exactly one readable edge per call as the edge-triggered
// contract requires. done=false means the edge was fully consumed without
// completing a callback-worthy amount of data; the caller must arm a new
// readable edge before returning to the poller.
func (e *EndpointCore) tcpDoRead() (done bool, n int, status *Status) {
	e.metrics.Record(MetricTCPReadOffer, int64(e.incoming.Len()))

	plan := NewIoVecPlan(e.incoming, 0, 0)
	control := make([]byte, 256)
	total := 0
	first := true

	for {
		if plan.AllSlicesSent() {
			e.maybeMakeReadSlices()
			if plan.AllSlicesSent() {
				break
			}
		}
		iov := plan.Build(maxReadIovec)
		if len(iov) == 0 {
			break
		}
		if first {
			e.metrics.Record(MetricTCPReadOfferIovSize, int64(len(iov)))
			first = false
		}

		e.inq = 1
		var (
			got  int
			oobn int
			err  error
		)
		for {
			got, oobn, _, _, err = e.iface.RecvMsg(iov, control, 0)
			if err == unix.EINTR {
				continue
			}
			break
		}

		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if total >= 1 {
				plan.RestoreToPreCall()
				break
			}
			e.rcvSizer.FinishEstimate()
			e.inq = 0
			e.truncateIncoming(plan.AbsoluteOffset())
			return false, 0, nil
		}
		if e.iface.IsWrongGeneration(err) {
			e.truncateIncoming(plan.AbsoluteOffset())
			return true, total, StatusCancelled("recvmsg: wrong generation")
		}
		if err != nil {
			e.clearIncoming()
			return true, total, StatusIOFailure("recvmsg", err)
		}
		if got == 0 {
			e.truncateIncoming(plan.AbsoluteOffset())
			return true, total, StatusClosedByPeer()
		}

		total += got
		e.rcvSizer.RecordBytesRead(got)
		plan.UpdateOffsetForBytesSent(plan.Planned(), got)

		if e.inqCapable {
			if inq, ok := e.scanInq(control[:oobn]); ok {
				e.inq = inq
			}
		}
		if e.inq == 0 {
			break
		}
	}

	e.truncateIncoming(plan.AbsoluteOffset())
	e.rcvSizer.FinishEstimate()
	e.metrics.Record(MetricTCPReadSize, int64(total))
	return true, total, nil
}

func (e *EndpointCore) scanInq(control []byte) (int, bool) {
	msgs, err := unix.ParseSocketControlMessage(control)
	if err != nil {
		return 0, false
	}
	for _, m := range msgs {
		if isInqCMsg(m.Header.Level, m.Header.Type) {
			return decodeInq(m.Data)
		}
	}
	return 0, false
}

func (e *EndpointCore) armReadable() {
	e.poller.NotifyOnRead(func() { e.HandleRead(nil) })
}

func (e *EndpointCore) updateRcvLowatLocked() {
	if !e.opts.Features.RcvLowatTuning {
		return
	}
	remaining, changed := e.rcvSizer.UpdateRcvLowat(e.incoming.Len(), e.minProgressSize, !e.zerocopy.Enabled())
	if !changed {
		return
	}
	if err := e.iface.SetSockOptInt(solSocket, soRcvLowat, remaining); err == nil {
		if applied, err := e.iface.GetSockOptInt(solSocket, soRcvLowat); err == nil {
			e.rcvSizer.NoteAppliedRcvLowat(applied)
		} else {
			e.rcvSizer.NoteAppliedRcvLowat(remaining)
		}
	}
}

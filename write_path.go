package tcpendpoint

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/relaycore/tcpendpoint/buffer"
)

// Write starts one write operation over data. It returns true iff the
// write completed synchronously without invoking cb; otherwise cb fires
// exactly once, once the bytes have either all been accepted by the
// kernel or the send has failed.
func (e *EndpointCore) Write(data *buffer.Buffer, cb func(*Status), args WriteArgs) bool {
	if !atomic.CompareAndSwapInt32(&e.writeInFlight, 0, 1) {
		panic("tcpendpoint: overlapping Write calls")
	}

	if data.Len() == 0 {
		atomic.StoreInt32(&e.writeInFlight, 0)
		if atomic.LoadInt32(&e.stopErrorNotification) != 0 {
			e.schedule(cb, StatusEOF())
			return false
		}
		return true
	}

	e.metrics.Record(MetricTCPWriteSize, int64(data.Len()))

	useZC := e.zerocopy.Enabled() && data.Len() > e.zerocopy.ThresholdBytes()
	if useZC {
		plan := NewIoVecPlan(data, 0, 0)
		if rec := e.zerocopy.GetSendRecord(plan); rec != nil {
			e.writeRecord = rec
		} else {
			useZC = false
		}
	}
	if !useZC {
		e.outgoing = data
		e.writePlan = NewIoVecPlan(e.outgoing, 0, 0)
		e.writeRecord = nil
	}

	if args.MetricsSink != nil && e.tsCapable {
		e.writeTSSink = args.MetricsSink
	} else {
		e.writeTSSink = nil
	}

	e.ref_()
	var complete bool
	var status *Status
	if useZC {
		complete, status = e.tcpFlushZerocopy()
	} else {
		complete, status = e.tcpFlush()
	}

	if !complete {
		e.writeCB = cb
		e.poller.NotifyOnWrite(func() { e.HandleWrite(nil) })
		return false
	}
	atomic.StoreInt32(&e.writeInFlight, 0)
	if !status.OK() {
		e.schedule(cb, status)
		e.unref_()
		return false
	}
	e.unref_()
	return true
}

// HandleWrite is the poller's writable-edge callback: it resumes whichever
// send loop was in progress (copy or zero-copy) using the state stashed by
// the last incomplete Write/HandleWrite round.
func (e *EndpointCore) HandleWrite(_ *Status) {
	useZC := e.writeRecord != nil
	var complete bool
	var status *Status
	if useZC {
		complete, status = e.tcpFlushZerocopy()
	} else {
		complete, status = e.tcpFlush()
	}

	if !complete {
		e.poller.NotifyOnWrite(func() { e.HandleWrite(nil) })
		return
	}

	cb := e.writeCB
	e.writeCB = nil
	atomic.StoreInt32(&e.writeInFlight, 0)
	if cb == nil {
		e.unref_()
		return
	}
	if status.OK() {
		cb(nil)
	} else {
		cb(status)
	}
	e.unref_()
}

// tcpFlush is the copy-path send loop: it owns e.outgoing outright, so a
// short send can simply trim the sent prefix and keep going.
func (e *EndpointCore) tcpFlush() (bool, *Status) {
	for {
		if e.outgoing.Len() == 0 {
			return true, nil
		}
		if e.writePlan == nil || e.writePlan.AllSlicesSent() {
			e.writePlan = NewIoVecPlan(e.outgoing, 0, 0)
		}
		iov := e.writePlan.Build(MaxWriteIovec)
		if len(iov) == 0 {
			return true, nil
		}
		planned := e.writePlan.Planned()
		e.armTimestampingForSend(planned)
		e.metrics.Record(MetricTCPWriteIovSize, int64(len(iov)))

		n, err := e.sendmsgRetryEINTR(iov, 0)

		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.ENOBUFS {
			e.writePlan.RestoreToPreCall()
			e.trimOutgoingToPlan()
			return false, nil
		}
		if err != nil {
			e.outgoing.Clear()
			return true, StatusIOFailure("sendmsg", err)
		}

		atomic.AddInt64(&e.bytesCounter, int64(n))
		if n < planned {
			e.writePlan.UpdateOffsetForBytesSent(planned, n)
		}
		e.trimOutgoingToPlan()
		if e.outgoing.Len() == 0 {
			return true, nil
		}
	}
}

func (e *EndpointCore) trimOutgoingToPlan() {
	consumed := e.writePlan.AbsoluteOffset()
	e.outgoing.TrimFront(consumed)
	e.writePlan = NewIoVecPlan(e.outgoing, 0, 0)
}

// tcpFlushZerocopy is the zero-copy send loop: unlike tcpFlush it never
// trims or recycles the buffer's slices directly, since the kernel has
// pinned those pages and will keep referencing them until it reports
// completion through the error queue. The plan's cursor walk is what
// tracks progress instead.
func (e *EndpointCore) tcpFlushZerocopy() (bool, *Status) {
	rec := e.writeRecord
	plan := rec.Plan()

	for !plan.AllSlicesSent() {
		iov := plan.Build(MaxWriteIovec)
		if len(iov) == 0 {
			break
		}
		planned := plan.Planned()

		e.zerocopy.NoteSend(rec)
		n, err := e.sendmsgRetryEINTR(iov, msgZeroCopy)

		enobufs := err == unix.ENOBUFS
		constrained := e.zerocopy.UpdateZeroCopyOptMemStateAfterSend(enobufs)

		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || enobufs {
			e.zerocopy.UndoSend(rec)
			plan.RestoreToPreCall()
			if constrained {
				e.logZeroCopyConstrained()
			}
			return false, nil
		}
		if err != nil {
			e.zerocopy.UndoSend(rec)
			e.unrefMaybePutZerocopySendRecord(rec)
			return true, StatusIOFailure("sendmsg(MSG_ZEROCOPY)", err)
		}

		atomic.AddInt64(&e.bytesCounter, int64(n))
		e.zerocopy.AssignSequence(rec)
		if n < planned {
			plan.UpdateOffsetForBytesSent(planned, n)
		}
	}

	e.unrefMaybePutZerocopySendRecord(rec)
	return true, nil
}

// unrefMaybePutZerocopySendRecord drops this Write call's own hold on rec.
// Any sends still awaiting a kernel completion keep the record alive
// through their own NoteSend reference until ProcessErrors reconciles
// them.
func (e *EndpointCore) unrefMaybePutZerocopySendRecord(rec *ZeroCopyRecord) {
	e.writeRecord = nil
	e.zerocopy.Unref(rec)
}

func (e *EndpointCore) sendmsgRetryEINTR(iov [][]byte, extraFlags int) (int, error) {
	for {
		n, err := e.iface.SendMsg(iov, nil, msgNoSignal|extraFlags)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// armTimestampingForSend registers a traced-buffer entry for the bytes
// about to be sent, if a sink is installed and the socket supports
// SO_TIMESTAMPING. A failure to enable the sockopt permanently disables
// timestamps for this endpoint rather than failing the write.
func (e *EndpointCore) armTimestampingForSend(planned int) {
	if e.writeTSSink == nil || !e.tsCapable {
		return
	}
	if atomic.LoadInt32(&e.socketTSEnabled) == 0 {
		if err := e.iface.SetSockOptInt(solSocket, soTimestamping, kTimestampingRecordingOptions); err != nil {
			e.writeTSSink = nil
			e.tsCapable = false
			e.traced.Shutdown()
			return
		}
		atomic.StoreInt32(&e.socketTSEnabled, 1)
	}
	watermark := uint32(atomic.LoadInt64(&e.bytesCounter) + int64(planned))
	e.traced.AddNewEntry(watermark, e.writeTSSink)
}

// logZeroCopyConstrained logs the ENOBUFS-under-zero-copy diagnostic, at
// most once per second per endpoint, since a socket stuck against the
// kernel's pinned-memory limit can hit this on every retry.
func (e *EndpointCore) logZeroCopyConstrained() {
	now := time.Now().UnixNano()
	last := atomic.LoadInt64(&e.lastConstrainedLogUnixNano)
	if now-last < int64(time.Second) {
		return
	}
	if !atomic.CompareAndSwapInt64(&e.lastConstrainedLogUnixNano, last, now) {
		return
	}
	e.opts.logger().WithFields(logrus.Fields{
		"peer":   e.peerAddressString(),
		"ulimit": GetUlimitInfo().String(),
	}).Warn("zero-copy send hit ENOBUFS with no in-flight records; likely limited by RLIMIT_MEMLOCK")
}

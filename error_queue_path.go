package tcpendpoint

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/relaycore/tcpendpoint/util"
)

// armError requests the next error-queue edge from the poller.
func (e *EndpointCore) armError() {
	e.poller.NotifyOnError(func() { e.HandleError(nil) })
}

// HandleError runs whenever the poller signals a pending error-queue
// event and error notifications have not been stopped by shutdown. If
// draining the queue turns up nothing, the wakeup was spurious or for an
// unrelated reason, so both readable and writable edges are force-armed
// to recover whatever it might have masked.
func (e *EndpointCore) HandleError(_ *Status) {
	if atomic.LoadInt32(&e.stopErrorNotification) != 0 {
		return
	}
	if !e.processErrorsLoop() {
		e.poller.SetReadable()
		e.poller.SetWritable()
	}
	if atomic.LoadInt32(&e.stopErrorNotification) == 0 {
		e.armError()
	}
}

// processErrorsLoop drains MSG_ERRQUEUE until a call reports nothing more
// to process, reporting whether at least one event was handled. It keeps
// issuing recvmsg(MSG_ERRQUEUE) calls only as long as processErrorsOnce
// says the drain should keep going; an unrecognized cmsg stops the whole
// drain even if it followed an already-handled one in the same batch.
func (e *EndpointCore) processErrorsLoop() bool {
	processedAny := false
	for {
		processed, keepDraining := e.processErrorsOnce()
		processedAny = processedAny || processed
		if !keepDraining {
			return processedAny
		}
	}
}

// processErrorsOnce issues a single recvmsg(MSG_ERRQUEUE) call and
// dispatches whatever cmsgs it carries. processed reports whether this
// call handled at least one event; keepDraining reports whether the
// caller should issue another recvmsg(MSG_ERRQUEUE) call at all. EAGAIN
// (queue empty), a parse failure, or an unrecognized cmsg all stop the
// drain outright, regardless of what was already processed earlier in
// this same batch.
func (e *EndpointCore) processErrorsOnce() (processed, keepDraining bool) {
	// The error queue's regular message payload carries no data of
	// interest to us; everything useful rides in the control message.
	scratch := make([]byte, 128)
	control := make([]byte, 512)

	_, oobn, recvFlags, _, err := e.iface.RecvMsg([][]byte{scratch}, control, msgErrQueue)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return false, false
	}
	if err != nil {
		return false, false
	}
	if recvFlags&msgCtrunc != 0 {
		e.opts.logger().Warn("tcpendpoint: error queue control message truncated")
	}
	if oobn == 0 {
		return false, false
	}

	msgs, perr := unix.ParseSocketControlMessage(control[:oobn])
	if perr != nil {
		util.LogWithContextIfNeeded("tcpendpoint: failed to parse error queue control message",
			util.NewContextualError("parse error queue cmsg", map[string]any{"oobn": oobn}, perr),
			e.opts.logger())
		return false, false
	}

	var pendingTS time.Time
	havePendingTS := false
	var pendingOptStats OptStats

	for _, m := range msgs {
		switch {
		case isTimestampingCMsg(m.Header.Level, m.Header.Type):
			if ts, ok := decodeTimestamping(m.Data); ok {
				pendingTS, havePendingTS = ts, true
			}

		case isOptStatsCMsg(m.Header.Level, m.Header.Type):
			pendingOptStats = decodeOptStats(m.Data)

		case isRecvErrCMsg(m.Header.Level, m.Header.Type):
			ext, ok := decodeSockExtendedErr(m.Data)
			if !ok {
				return processed, false
			}
			switch int(ext.Origin) {
			case soEEOriginZeroCopy:
				if ext.Errno != 0 {
					return processed, false
				}
				e.releaseZeroCopyRange(ext.Info, ext.Data)
				processed = true

			case soEEOriginTimestamping:
				if havePendingTS {
					e.traced.ProcessTimestamp(timestampKindFromInfo(ext.Info), ext.Data, pendingOptStats, pendingTS)
					havePendingTS = false
					pendingOptStats = nil
				}
				processed = true

			default:
				return processed, false
			}

		default:
			return processed, false
		}
	}
	return processed, true
}

// releaseZeroCopyRange handles one zero-copy completion: every sequence
// number in [lo, hi] is inclusive per SO_EE_ORIGIN_ZEROCOPY semantics.
func (e *EndpointCore) releaseZeroCopyRange(lo, hi uint32) {
	for seq := lo; seq <= hi; seq++ {
		if rec := e.zerocopy.ReleaseSendRecord(seq); rec != nil {
			e.zerocopy.Unref(rec)
		}
		if seq == hi {
			break // guards against hi == ^uint32(0) wrapping the loop
		}
	}
	if e.zerocopy.UpdateZeroCopyOptMemStateAfterFree() {
		e.poller.SetWritable()
	}
}

// timestampKindFromInfo maps Linux's SCM_TSTAMP_* enum (carried in
// sock_extended_err.Info for a SO_EE_ORIGIN_TIMESTAMPING completion) onto
// TimestampKind.
func timestampKindFromInfo(info uint32) TimestampKind {
	switch info {
	case 0: // SCM_TSTAMP_SND
		return TimestampSent
	case 1: // SCM_TSTAMP_SCHED
		return TimestampScheduled
	case 2: // SCM_TSTAMP_ACK
		return TimestampAcked
	default:
		return TimestampSent
	}
}

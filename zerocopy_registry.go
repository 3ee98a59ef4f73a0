package tcpendpoint

import "sync"

// ZeroCopyRegistry is a concurrency-bounded pool of ZeroCopyRecords keyed
// by kernel-assigned sequence number. One registry belongs to a single
// endpoint's write side; it decides whether zero-copy is available at all
// (negotiated at construction and accepted by the kernel), how many sends
// may be outstanding at once, and how the write path should react when the
// kernel reports it is out of the socket buffer memory zero-copy needs
// (ENOBUFS).
type ZeroCopyRegistry struct {
	mu sync.Mutex

	negotiated     bool
	kernelAccepted bool
	thresholdBytes int
	maxInFlight    int

	inFlight int
	freeList []*ZeroCopyRecord

	nextSeq uint32
	bySeq   map[uint32]*ZeroCopyRecord

	shuttingDown bool
	constrained  bool
}

// NewZeroCopyRegistry builds a registry. negotiated is the caller's
// request (Options.ZeroCopyEnabled); kernelAccepted reports whether
// SO_ZEROCOPY was actually set on the socket. Both must hold for Enabled
// to report true, matching the sockopt-return-value-sense: zero-copy is
// live only once the kernel has agreed to it, never merely because it was
// requested.
func NewZeroCopyRegistry(negotiated, kernelAccepted bool, maxInFlight, thresholdBytes int) *ZeroCopyRegistry {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if thresholdBytes < 0 {
		thresholdBytes = 0
	}
	return &ZeroCopyRegistry{
		negotiated:     negotiated,
		kernelAccepted: kernelAccepted,
		thresholdBytes: thresholdBytes,
		maxInFlight:    maxInFlight,
		bySeq:          make(map[uint32]*ZeroCopyRecord),
	}
}

// Enabled reports whether the write path may use zero-copy sends at all.
func (z *ZeroCopyRegistry) Enabled() bool {
	return z.negotiated && z.kernelAccepted
}

// ThresholdBytes is the minimum write size that is worth the zero-copy
// setup cost; writes below it take the ordinary copying send path even
// when Enabled is true.
func (z *ZeroCopyRegistry) ThresholdBytes() int {
	return z.thresholdBytes
}

// GetSendRecord checks a record out of the pool for a new zero-copy
// write, or returns nil if the registry is shutting down or already has
// MaxInFlight records outstanding. The returned record starts with a
// single reference representing the caller's hold.
func (z *ZeroCopyRegistry) GetSendRecord(plan *IoVecPlan) *ZeroCopyRecord {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.shuttingDown || z.inFlight >= z.maxInFlight {
		return nil
	}
	var rec *ZeroCopyRecord
	if n := len(z.freeList); n > 0 {
		rec = z.freeList[n-1]
		z.freeList = z.freeList[:n-1]
	} else {
		rec = &ZeroCopyRecord{}
	}
	rec.reset(plan)
	z.inFlight++
	return rec
}

// NoteSend increments rec's live-send count before a sendmsg(MSG_ZEROCOPY)
// call is issued, so the record cannot be freed out from under an
// in-flight syscall.
func (z *ZeroCopyRegistry) NoteSend(rec *ZeroCopyRecord) {
	rec.noteSend()
}

// UndoSend reverses NoteSend when the sendmsg call it preceded returned
// an error (EAGAIN, ENOBUFS or a hard failure), so the kernel accepted no
// bytes from that call.
func (z *ZeroCopyRegistry) UndoSend(rec *ZeroCopyRecord) {
	rec.undoSend()
}

// AssignSequence allocates the next kernel-order sequence number for a
// send that has just been confirmed successful, and records that rec owns
// it. Sequence numbers must be assigned in the same order the kernel will
// report completions in, i.e. only after sendmsg has actually returned
// success for the bytes in question.
func (z *ZeroCopyRegistry) AssignSequence(rec *ZeroCopyRecord) uint32 {
	z.mu.Lock()
	seq := z.nextSeq
	z.nextSeq++
	z.bySeq[seq] = rec
	z.mu.Unlock()
	rec.trackSeq(seq)
	return seq
}

// ReleaseSendRecord looks up the record that owns seq, marks the sequence
// acknowledged on it, and returns it. It does not itself drop a
// reference; the caller is expected to invoke Unref once it is done
// inspecting the record, mirroring how error-queue processing separates
// "note the ack" from "drop our hold."
func (z *ZeroCopyRegistry) ReleaseSendRecord(seq uint32) *ZeroCopyRecord {
	z.mu.Lock()
	rec, ok := z.bySeq[seq]
	if ok {
		delete(z.bySeq, seq)
	}
	z.mu.Unlock()
	if !ok {
		return nil
	}
	rec.addAckedSeq(seq)
	return rec
}

// Unref drops one reference on rec (the caller's hold, or one send's
// worth of "kernel has not acked yet"). When the count reaches zero the
// record is returned to the pool and the in-flight ceiling is relaxed by
// one.
func (z *ZeroCopyRegistry) Unref(rec *ZeroCopyRecord) {
	if !rec.unref() {
		return
	}
	z.mu.Lock()
	z.inFlight--
	z.freeList = append(z.freeList, rec)
	z.mu.Unlock()
}

// UpdateZeroCopyOptMemStateAfterSend records whether the most recent send
// hit ENOBUFS and reports the resulting constrained state. The registry
// is considered memory-constrained once ENOBUFS occurs while it has zero
// of its own records in flight: with nothing of ours outstanding, ENOBUFS
// can only mean the platform-wide zero-copy memory limit is currently
// exhausted, not that we are hitting our own ceiling.
func (z *ZeroCopyRegistry) UpdateZeroCopyOptMemStateAfterSend(enobufs bool) (constrained bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if enobufs && z.inFlight == 0 {
		z.constrained = true
	}
	return z.constrained
}

// UpdateZeroCopyOptMemStateAfterFree clears the constrained state after a
// send record has been freed, reporting true when it actually transitioned
// out of constrained. The write path uses that transition as its signal
// to mark the handle writable again after having backed off on ENOBUFS.
func (z *ZeroCopyRegistry) UpdateZeroCopyOptMemStateAfterFree() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.constrained {
		z.constrained = false
		return true
	}
	return false
}

// Shutdown prevents any further records from being checked out. Records
// already outstanding continue to drain normally as their sends are
// acknowledged.
func (z *ZeroCopyRegistry) Shutdown() {
	z.mu.Lock()
	z.shuttingDown = true
	z.mu.Unlock()
}

// AllSendRecordsEmpty reports whether every checked-out record has been
// fully returned to the pool, i.e. it is safe to tear the registry down.
func (z *ZeroCopyRegistry) AllSendRecordsEmpty() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.inFlight == 0
}

package tcpendpoint

import "sync"

// ZeroCopyRecord is the per-send bookkeeping for one zero-copy
// transmission. It owns the IoVecPlan for the write, the sequence numbers
// the kernel has assigned to the underlying sendmsg(MSG_ZEROCOPY) calls,
// and a reference count that keeps the record alive as long as either the
// caller still holds it or the kernel has not yet acknowledged every send
// issued from it.
type ZeroCopyRecord struct {
	mu   sync.Mutex
	ref  int
	plan *IoVecPlan
	seqs []uint32

	// ackedRanges is the set of inclusive [lo, hi] sequence ranges the
	// kernel has confirmed, coalesced as they arrive. Kept mainly so
	// tests and diagnostics can see exactly what was acknowledged.
	ackedRanges [][2]uint32
}

func (r *ZeroCopyRecord) reset(plan *IoVecPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ref = 1
	r.plan = plan
	r.seqs = r.seqs[:0]
	r.ackedRanges = r.ackedRanges[:0]
}

// Plan returns the IoVecPlan driving this record's send.
func (r *ZeroCopyRecord) Plan() *IoVecPlan {
	return r.plan
}

// AllSlicesSent reports whether the record's plan has consumed every
// slice of its buffer.
func (r *ZeroCopyRecord) AllSlicesSent() bool {
	return r.plan != nil && r.plan.AllSlicesSent()
}

func (r *ZeroCopyRecord) noteSend() {
	r.mu.Lock()
	r.ref++
	r.mu.Unlock()
}

func (r *ZeroCopyRecord) undoSend() {
	r.mu.Lock()
	r.ref--
	r.mu.Unlock()
}

// unref drops one reference and reports whether the record has become
// empty (no caller hold, no outstanding kernel acks).
func (r *ZeroCopyRecord) unref() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ref--
	if r.ref < 0 {
		panic("tcpendpoint: ZeroCopyRecord ref count went negative")
	}
	return r.ref == 0
}

func (r *ZeroCopyRecord) trackSeq(seq uint32) {
	r.mu.Lock()
	r.seqs = append(r.seqs, seq)
	r.mu.Unlock()
}

func (r *ZeroCopyRecord) addAckedSeq(seq uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rng := range r.ackedRanges {
		if seq+1 == rng[0] {
			r.ackedRanges[i][0] = seq
			return
		}
		if rng[1]+1 == seq {
			r.ackedRanges[i][1] = seq
			return
		}
		if seq >= rng[0] && seq <= rng[1] {
			return
		}
	}
	r.ackedRanges = append(r.ackedRanges, [2]uint32{seq, seq})
}

// AckedRanges returns a snapshot of the acknowledged sequence ranges.
func (r *ZeroCopyRecord) AckedRanges() [][2]uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][2]uint32, len(r.ackedRanges))
	copy(out, r.ackedRanges)
	return out
}

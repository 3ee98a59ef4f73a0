package tcpendpoint

import "github.com/relaycore/tcpendpoint/buffer"

// MaxWriteIovec bounds how many slices a single sendmsg/recvmsg call plans
// for. 260 matches the historical safe default; a platform with a smaller
// IOV_MAX should shrink this at init via SetMaxWriteIovec.
var MaxWriteIovec = 260

// SetMaxWriteIovec clamps MaxWriteIovec to the smaller of its current value
// and limit. Nothing in this module calls it; it is for a caller that has
// probed the platform's IOV_MAX at startup.
func SetMaxWriteIovec(limit int) {
	if limit > 0 && limit < MaxWriteIovec {
		MaxWriteIovec = limit
	}
}

// IoVecPlan converts a run of a Buffer's slices into an iovec array
// suitable for one sendmsg/recvmsg call, and remembers enough state to
// unwind the buffer's cursor after a short or failed send.
type IoVecPlan struct {
	buf *buffer.Buffer

	// sliceIdx/byteIdx is the buffer cursor: buf.SliceAt(sliceIdx)[byteIdx:]
	// is the first unconsumed byte. byteIdx is always 0 immediately after
	// Build, since Build only ever includes whole slice tails.
	sliceIdx, byteIdx int

	// preSliceIdx/preByteIdx is the cursor as it stood before the most
	// recent Build call.
	preSliceIdx, preByteIdx int

	planned int
}

// NewIoVecPlan starts a plan over buf at the given cursor.
func NewIoVecPlan(buf *buffer.Buffer, sliceIdx, byteIdx int) *IoVecPlan {
	return &IoVecPlan{buf: buf, sliceIdx: sliceIdx, byteIdx: byteIdx}
}

// SliceIdx and ByteIdx report the current cursor.
func (p *IoVecPlan) SliceIdx() int { return p.sliceIdx }
func (p *IoVecPlan) ByteIdx() int  { return p.byteIdx }

// AllSlicesSent reports whether the cursor has consumed every slice in the
// underlying buffer.
func (p *IoVecPlan) AllSlicesSent() bool {
	return p.sliceIdx >= p.buf.NumSlices()
}

// Build produces up to maxIovs slices starting at the current cursor,
// advances the cursor past the planned bytes, and records the pre-call
// offset. maxIovs is clamped to MaxWriteIovec.
func (p *IoVecPlan) Build(maxIovs int) [][]byte {
	if maxIovs <= 0 || maxIovs > MaxWriteIovec {
		maxIovs = MaxWriteIovec
	}
	p.preSliceIdx, p.preByteIdx = p.sliceIdx, p.byteIdx

	var iov [][]byte
	si, bi := p.sliceIdx, p.byteIdx
	planned := 0
	for len(iov) < maxIovs && si < p.buf.NumSlices() {
		s := p.buf.SliceAt(si)
		if bi > 0 {
			s = s[bi:]
		}
		if len(s) > 0 {
			iov = append(iov, s)
			planned += len(s)
		}
		si++
		bi = 0
	}
	p.sliceIdx, p.byteIdx = si, bi
	p.planned = planned
	return iov
}

// Planned returns the total byte length of the most recent Build call.
func (p *IoVecPlan) Planned() int {
	return p.planned
}

// RestoreToPreCall resets the cursor to what it was before the most recent
// Build, for the EAGAIN/ENOBUFS unwind path where nothing was actually
// consumed by the kernel.
func (p *IoVecPlan) RestoreToPreCall() {
	p.sliceIdx, p.byteIdx = p.preSliceIdx, p.preByteIdx
}

// AbsoluteOffset returns the current cursor as a single byte count from
// the start of the buffer: the sum of every fully-consumed slice's length
// plus the in-progress slice's byte offset.
func (p *IoVecPlan) AbsoluteOffset() int {
	off := 0
	for i := 0; i < p.sliceIdx; i++ {
		off += len(p.buf.SliceAt(i))
	}
	return off + p.byteIdx
}

// UpdateOffsetForBytesSent walks the cursor backward from the end of the
// most recently built plan until actual bytes remain accounted for,
// leaving the cursor at the first unsent byte. planned must be the value
// most recently returned by Planned (or passed to Build).
func (p *IoVecPlan) UpdateOffsetForBytesSent(planned, actual int) {
	unsent := planned - actual
	si, bi := p.sliceIdx, p.byteIdx
	for unsent > 0 {
		if bi == 0 {
			si--
			bi = len(p.buf.SliceAt(si))
		}
		take := bi
		if take > unsent {
			take = unsent
		}
		bi -= take
		unsent -= take
	}
	p.sliceIdx, p.byteIdx = si, bi
}

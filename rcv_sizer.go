package tcpendpoint

import "sync"

const (
	rcvLowatMaxWindow = 16 << 20 // cap considered for SO_RCVLOWAT
	rcvLowatFloor     = 16 << 10 // below this, withholding notifications isn't worth it
)

// RcvSizer tracks the read path's adaptive target allocation length and,
// when enabled, the SO_RCVLOWAT value that lets the kernel withhold
// readability until enough bytes are queued to make progress worthwhile.
type RcvSizer struct {
	mu sync.Mutex

	targetLength      float64
	bytesReadThisRound int

	lowatTuning  bool
	setRcvLowat  int
}

// NewRcvSizer builds a sizer with an initial target of initialLength.
func NewRcvSizer(initialLength int, lowatTuning bool) *RcvSizer {
	if initialLength <= 0 {
		initialLength = 8 << 10
	}
	return &RcvSizer{targetLength: float64(initialLength), lowatTuning: lowatTuning}
}

// TargetLength returns the current adaptive allocation goal, rounded down
// to a whole byte count.
func (s *RcvSizer) TargetLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.targetLength)
}

// RecordBytesRead accumulates bytes seen during the current read burst;
// call once per successful recvmsg within a TcpDoRead loop.
func (s *RcvSizer) RecordBytesRead(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.bytesReadThisRound += n
	s.mu.Unlock()
}

// FinishEstimate folds the accumulated burst into the target-length
// estimate: a burst that filled most of the offered space grows the
// target aggressively; anything smaller decays it with a slow exponential
// average, so a single quiet read doesn't collapse the target.
func (s *RcvSizer) FinishEstimate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	read := float64(s.bytesReadThisRound)
	if read > 0.8*s.targetLength {
		grown := 2 * s.targetLength
		if read > grown {
			grown = read
		}
		s.targetLength = grown
	} else {
		s.targetLength = 0.99*s.targetLength + 0.01*read
	}
	s.bytesReadThisRound = 0
}

// UpdateRcvLowat computes the SO_RCVLOWAT value appropriate for the
// current incoming-buffer length and min-progress demand. It reports the
// value to apply and whether it differs meaningfully from what was last
// set; the caller is responsible for the sockopt call and for feeding the
// kernel's actual applied value back via NoteAppliedRcvLowat. Disabled by
// feature flag, it always reports no change.
func (s *RcvSizer) UpdateRcvLowat(incomingLen, minProgressSize int, zeroCopyDisabled bool) (remaining int, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lowatTuning {
		return 0, false
	}

	remaining = incomingLen
	if remaining > rcvLowatMaxWindow {
		remaining = rcvLowatMaxWindow
	}
	if minProgressSize < remaining {
		remaining = minProgressSize
	}
	if remaining < rcvLowatFloor {
		remaining = 0
	} else if zeroCopyDisabled {
		remaining -= rcvLowatFloor
	}

	if remaining <= 1 && s.setRcvLowat <= 1 {
		// We still do not know the RPC size. Do not set SO_RCVLOWAT.
		return remaining, false
	}
	if remaining == s.setRcvLowat {
		return remaining, false
	}
	return remaining, true
}

// NoteAppliedRcvLowat records the value the kernel actually reported back
// after a successful SO_RCVLOWAT setsockopt, so the next UpdateRcvLowat
// call compares against reality rather than the requested value.
func (s *RcvSizer) NoteAppliedRcvLowat(applied int) {
	s.mu.Lock()
	s.setRcvLowat = applied
	s.mu.Unlock()
}

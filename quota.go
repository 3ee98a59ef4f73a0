package tcpendpoint

import (
	"sync"
	"sync/atomic"
)

// PressureReclaimThreshold is the pressure level, in [0, 1], at which a
// quota is expected to start sweeping its registered reclaimers and
// ReadPath switches to conservative allocation sizing. Both BoundedQuota
// and read_path.go's maybeMakeReadSlices are calibrated against it.
const PressureReclaimThreshold = 0.8

// MemoryQuota is the external memory reservation collaborator. The read
// path charges it for every chunk it allocates and returns the charge when
// the chunk is freed or the endpoint is reset; ReadPath consults Pressure
// to decide how aggressively to grow the receive buffer. A quota under
// pressure can also reach back into the endpoints charged against it
// through RegisterReclaimer to ask them to give memory back.
type MemoryQuota interface {
	// Reserve accounts for n additional bytes against the quota. It never
	// blocks or fails the caller — a quota under pressure is reflected in
	// Pressure, not in a rejected reservation.
	Reserve(n int)
	// Release returns n bytes previously reserved.
	Release(n int)
	// Pressure returns a value in [0, 1] describing how close the quota is
	// to its limit; PressureReclaimThreshold is the threshold ReadPath
	// treats as "under pressure" when sizing allocations.
	Pressure() float64
	// RegisterReclaimer records a benign reclaimer the quota may invoke
	// when it wants memory back under pressure: fn should drop whatever
	// staged capacity it safely can and report whether it freed anything.
	// The returned unregister func removes it; callers must invoke it when
	// the reclaimer's owner goes away; a reclaimer that never comes back
	// is otherwise ignored.
	RegisterReclaimer(fn func() bool) (unregister func())
}

// NoopQuota is a MemoryQuota that never reports pressure. Useful for tests
// and for callers that manage memory pressure at a higher layer.
type NoopQuota struct{}

func (NoopQuota) Reserve(int)       {}
func (NoopQuota) Release(int)       {}
func (NoopQuota) Pressure() float64 { return 0 }
func (NoopQuota) RegisterReclaimer(func() bool) (unregister func()) {
	return func() {}
}

// BoundedQuota is a process-wide MemoryQuota with a fixed byte limit,
// shared across every endpoint that reads from it. Pressure grows linearly
// from 0 at an empty quota to 1 at the limit, which is what
// PressureReclaimThreshold is calibrated against. Every Reserve call that
// pushes Pressure at or above that threshold sweeps the registered
// reclaimers once, giving endpoints a chance to drop staged read capacity.
// Reserve itself never rejects an allocation.
type BoundedQuota struct {
	limit int64
	used  int64 // atomic

	mu              sync.Mutex
	reclaimers      map[int]func() bool
	nextReclaimerID int
}

// NewBoundedQuota returns a BoundedQuota with the given byte limit. A
// non-positive limit disables the bound: Pressure always reports 0.
func NewBoundedQuota(limitBytes int64) *BoundedQuota {
	return &BoundedQuota{limit: limitBytes, reclaimers: make(map[int]func() bool)}
}

func (q *BoundedQuota) Reserve(n int) {
	atomic.AddInt64(&q.used, int64(n))
	if q.Pressure() >= PressureReclaimThreshold {
		q.sweepReclaimers()
	}
}

func (q *BoundedQuota) Release(n int) {
	atomic.AddInt64(&q.used, -int64(n))
}

func (q *BoundedQuota) Pressure() float64 {
	if q.limit <= 0 {
		return 0
	}
	used := atomic.LoadInt64(&q.used)
	if used <= 0 {
		return 0
	}
	p := float64(used) / float64(q.limit)
	if p > 1 {
		return 1
	}
	return p
}

// Used returns the number of bytes currently reserved.
func (q *BoundedQuota) Used() int64 {
	return atomic.LoadInt64(&q.used)
}

func (q *BoundedQuota) RegisterReclaimer(fn func() bool) (unregister func()) {
	q.mu.Lock()
	id := q.nextReclaimerID
	q.nextReclaimerID++
	q.reclaimers[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.reclaimers, id)
		q.mu.Unlock()
	}
}

// sweepReclaimers invokes every currently-registered reclaimer once. It
// copies the map under lock and calls out unlocked, since a reclaimer is
// free to call back into Release (and therefore Pressure) while it runs.
func (q *BoundedQuota) sweepReclaimers() {
	q.mu.Lock()
	fns := make([]func() bool, 0, len(q.reclaimers))
	for _, fn := range q.reclaimers {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

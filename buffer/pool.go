// Package buffer implements the gather/scatter byte container the endpoint
// reads into and writes out of. It is deliberately small: two pooled chunk
// sizes (8KiB and 64KiB, matching the allocation sizes the read path asks
// for) plus heap fallback for anything else, following the size-classed
// sync.Pool layout gvisor's pkg/buffer uses for its chunk pools.
package buffer

import "sync"

const (
	// SmallChunkSize is used when the endpoint only needs a little more
	// room to make progress.
	SmallChunkSize = 8 << 10
	// LargeChunkSize is used when the endpoint expects a full read burst.
	LargeChunkSize = 64 << 10
)

var (
	smallPool = sync.Pool{New: func() any { return make([]byte, SmallChunkSize) }}
	largePool = sync.Pool{New: func() any { return make([]byte, LargeChunkSize) }}
)

// GetChunk returns a slice of exactly n bytes. n must be SmallChunkSize or
// LargeChunkSize to come from a pool; any other size is heap-allocated.
func GetChunk(n int) []byte {
	switch n {
	case SmallChunkSize:
		return smallPool.Get().([]byte)
	case LargeChunkSize:
		return largePool.Get().([]byte)
	default:
		return make([]byte, n)
	}
}

// PutChunk returns a slice previously obtained from GetChunk to its pool.
// Slices of other capacities are silently dropped for the GC to reclaim.
func PutChunk(b []byte) {
	switch cap(b) {
	case SmallChunkSize:
		//nolint:staticcheck // reusing full capacity slice for pooling
		smallPool.Put(b[:SmallChunkSize])
	case LargeChunkSize:
		largePool.Put(b[:LargeChunkSize])
	}
}

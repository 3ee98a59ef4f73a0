package buffer

// Buffer is a gather/scatter byte container: an ordered sequence of byte
// slices that together form one logical byte stream. The read and write
// paths never copy a whole buffer around; they walk it slice by slice to
// build syscall iovecs, and trim/append slices in place as bytes are
// consumed or produced.
type Buffer struct {
	slices [][]byte
	length int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Len returns the total number of bytes across all slices.
func (b *Buffer) Len() int {
	return b.length
}

// NumSlices returns the number of slices currently held.
func (b *Buffer) NumSlices() int {
	return len(b.slices)
}

// SliceAt returns the i'th slice. It panics if i is out of range.
func (b *Buffer) SliceAt(i int) []byte {
	return b.slices[i]
}

// Slices returns the underlying slice list. Callers must not retain it
// across a mutating call (AppendSlice, TrimFront, Clear, Swap, ...).
func (b *Buffer) Slices() [][]byte {
	return b.slices
}

// AppendSlice appends s to the buffer without copying; the buffer takes
// ownership of s.
func (b *Buffer) AppendSlice(s []byte) {
	if len(s) == 0 {
		return
	}
	b.slices = append(b.slices, s)
	b.length += len(s)
}

// AppendCopy copies p into a freshly allocated slice and appends it.
func (b *Buffer) AppendCopy(p []byte) {
	if len(p) == 0 {
		return
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	b.AppendSlice(cp)
}

// AppendChunk allocates a pooled chunk of size n, appends it, and returns
// it so the caller can read into it before accounting for the bytes used.
func (b *Buffer) AppendChunk(n int) []byte {
	c := GetChunk(n)
	b.AppendSlice(c)
	return c
}

// TrimFront removes the first n bytes from the buffer. Fully-consumed
// slices are returned to the pool. Panics if n > Len().
func (b *Buffer) TrimFront(n int) {
	if n < 0 || n > b.length {
		panic("buffer: TrimFront out of range")
	}
	for n > 0 {
		s := b.slices[0]
		if n < len(s) {
			b.slices[0] = s[n:]
			b.length -= n
			return
		}
		n -= len(s)
		b.length -= len(s)
		PutChunk(s)
		b.slices = b.slices[1:]
	}
}

// TruncateTo drops all bytes past the first n, releasing the freed tail
// slices back to the pool. Panics if n > Len().
func (b *Buffer) TruncateTo(n int) {
	if n < 0 || n > b.length {
		panic("buffer: TruncateTo out of range")
	}
	remaining := n
	for i, s := range b.slices {
		if remaining <= len(s) {
			for j := i + 1; j < len(b.slices); j++ {
				PutChunk(b.slices[j])
			}
			if remaining == 0 {
				b.slices = b.slices[:i]
			} else {
				b.slices[i] = s[:remaining]
				b.slices = b.slices[:i+1]
			}
			b.length = n
			return
		}
		remaining -= len(s)
	}
}

// Clear empties the buffer, returning every slice to its pool.
func (b *Buffer) Clear() {
	for _, s := range b.slices {
		PutChunk(s)
	}
	b.slices = nil
	b.length = 0
}

// Swap exchanges the contents of b and other.
func (b *Buffer) Swap(other *Buffer) {
	b.slices, other.slices = other.slices, b.slices
	b.length, other.length = other.length, b.length
}

// TakeSlices detaches and returns the slice list, leaving the buffer empty
// without releasing anything to the pool. Used when ownership of the bytes
// moves to a zero-copy send record.
func (b *Buffer) TakeSlices() [][]byte {
	s := b.slices
	b.slices = nil
	b.length = 0
	return s
}

// CopyOut copies up to len(dst) bytes from the front of the buffer into
// dst, without mutating the buffer, and returns the number of bytes copied.
func (b *Buffer) CopyOut(dst []byte) int {
	n := 0
	for _, s := range b.slices {
		if n == len(dst) {
			break
		}
		c := copy(dst[n:], s)
		n += c
	}
	return n
}

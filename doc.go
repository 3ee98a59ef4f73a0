// Package tcpendpoint implements a POSIX stream-socket endpoint for an
// event-driven RPC runtime: the read/write loop that moves bytes across a
// connected TCP socket, coupled with adaptive receive buffering,
// kernel-assisted zero-copy transmission, write-completion and timestamp
// harvesting from the socket error queue, backpressure via low-water marks,
// and memory-pressure-driven reclamation.
//
// The endpoint owns the syscall loop and the bookkeeping around it; it does
// not own the readiness poller, the byte-slice primitive, the memory quota,
// or socket setup — those are external collaborators reached through the
// interfaces in poller.go, buffer, quota.go, and posix.
package tcpendpoint

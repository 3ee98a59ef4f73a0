package tcpendpoint

import "net/netip"

// Poller is the downstream collaborator: an edge-triggered I/O readiness
// notifier. The endpoint never polls itself; it asks the poller for the
// next edge and the poller invokes the registered closure exactly once
// when that edge fires. The endpoint must consume everything available
// before re-arming — that is the edge-triggered contract this whole
// package is built around.
type Poller interface {
	// NotifyOnRead registers cb to run the next time the socket becomes
	// readable. At most one is outstanding at a time.
	NotifyOnRead(cb func())
	// NotifyOnWrite registers cb to run the next time the socket becomes
	// writable.
	NotifyOnWrite(cb func())
	// NotifyOnError registers cb to run the next time the socket has an
	// error-queue event pending.
	NotifyOnError(cb func())

	// SetReadable, SetWritable, and SetHasError force-arm the
	// corresponding edge as if the kernel had just reported it. Used to
	// recover from a spurious or unrelated error-queue wakeup, and to
	// unblock a write that was constrained on kernel zero-copy memory.
	SetReadable()
	SetWritable()
	SetHasError()

	// CanTrackErrors reports whether this poller supports registering for
	// MSG_ERRQUEUE-style error notifications on this platform.
	CanTrackErrors() bool

	// ShutdownHandle tears down the poller's registration for this
	// endpoint. Callbacks still pending on the poller side are dropped,
	// not run; MaybeShutdown delivers status to pending read and write
	// callbacks itself.
	ShutdownHandle(status *Status)
	// OrphanHandle finalizes the poller registration. If outFD is
	// non-nil, the raw descriptor is written there instead of being
	// closed, handing ownership back to the caller. onDone runs once the
	// handle is fully released.
	OrphanHandle(onDone func(), outFD *int)

	// Interface returns the syscall wrappers bound to this handle's
	// descriptor.
	Interface() PosixInterface
}

// PosixInterface is the downstream syscall surface the endpoint drives
// directly: sendmsg/recvmsg/setsockopt plus address queries. A concrete
// implementation lives in package posix; this interface is what
// EndpointCore actually depends on so it can be driven by a fake in tests.
type PosixInterface interface {
	RecvMsg(buf [][]byte, control []byte, flags int) (n int, oobn int, recvFlags int, name []byte, err error)
	SendMsg(buf [][]byte, control []byte, flags int) (n int, err error)
	SetSockOptInt(level, opt, value int) error
	GetSockOptInt(level, opt int) (int, error)
	LocalAddr() (netip.AddrPort, error)
	PeerAddr() (netip.AddrPort, error)
	FD() int
	// IsWrongGeneration reports whether err indicates the descriptor's
	// generation changed underneath the caller (post-fork), which the
	// endpoint reports as Cancelled rather than Unavailable.
	IsWrongGeneration(err error) bool
}

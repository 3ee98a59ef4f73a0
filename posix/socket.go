package posix

import (
	"errors"
	"net/netip"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// generationCounter is bumped by BumpGeneration whenever the process
// detects it may have forked (e.g. a supervisor re-exec). Sockets stamp
// their creation-time value and refuse further syscalls once it moves,
// the same "wrong generation" guard grpc's posix endpoint applies to
// descriptors that could have been silently duplicated into a child.
var generationCounter int64

// BumpGeneration invalidates every Socket created before this call. Call
// it from a post-fork hook; existing sockets start returning
// ErrWrongGeneration instead of touching the descriptor.
func BumpGeneration() {
	atomic.AddInt64(&generationCounter, 1)
}

// ErrWrongGeneration is returned by RecvMsg/SendMsg once BumpGeneration
// has moved past this socket's creation-time generation.
var ErrWrongGeneration = errors.New("posix: socket generation stale")

// Socket is a connected stream socket in non-blocking mode.
type Socket struct {
	fd         int
	generation int64
	local      netip.AddrPort
	peer       netip.AddrPort
}

// FD returns the raw descriptor. Ownership stays with the Socket; callers
// must not close it directly.
func (s *Socket) FD() int { return s.fd }

func (s *Socket) LocalAddr() (netip.AddrPort, error) {
	if s.local.IsValid() {
		return s.local, nil
	}
	return addrFromGetname(s.fd, unix.Getsockname)
}

func (s *Socket) PeerAddr() (netip.AddrPort, error) {
	if s.peer.IsValid() {
		return s.peer, nil
	}
	return addrFromGetname(s.fd, unix.Getpeername)
}

func (s *Socket) SetSockOptInt(level, opt, value int) error {
	return unix.SetsockoptInt(s.fd, level, opt, value)
}

func (s *Socket) GetSockOptInt(level, opt int) (int, error) {
	return unix.GetsockoptInt(s.fd, level, opt)
}

// IsWrongGeneration reports whether err is (or wraps) ErrWrongGeneration.
func (s *Socket) IsWrongGeneration(err error) bool {
	return errors.Is(err, ErrWrongGeneration)
}

// RecvMsg and SendMsg are the multi-iovec gather/scatter primitives the
// endpoint's read and write loops are built around. golang.org/x/sys/unix
// exposes these directly rather than forcing callers to hand-roll a
// platform-specific Msghdr/Iovec (32-bit vs 64-bit Iovlen width is exactly
// the kind of detail that trips up a manual version).
func (s *Socket) RecvMsg(buf [][]byte, control []byte, flags int) (n, oobn, recvFlags int, name []byte, err error) {
	if atomic.LoadInt64(&generationCounter) != s.generation {
		return 0, 0, 0, nil, ErrWrongGeneration
	}
	n, oobn, recvFlags, _, err = unix.RecvmsgBuffers(s.fd, buf, control, flags)
	return n, oobn, recvFlags, nil, err
}

func (s *Socket) SendMsg(buf [][]byte, control []byte, flags int) (n int, err error) {
	if atomic.LoadInt64(&generationCounter) != s.generation {
		return 0, ErrWrongGeneration
	}
	return unix.SendmsgBuffers(s.fd, buf, control, nil, flags)
}

// Close releases the descriptor. The endpoint never calls this directly;
// it goes through the poller's OrphanHandle/ShutdownHandle instead.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

func addrFromGetname(fd int, getname func(int) (unix.Sockaddr, error)) (netip.AddrPort, error) {
	sa, err := getname(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)), nil
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port)), nil
	default:
		return netip.AddrPort{}, errors.New("posix: unsupported sockaddr type")
	}
}

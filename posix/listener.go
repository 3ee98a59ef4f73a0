package posix

import (
	"net/netip"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Listener is a non-blocking, edge-triggered-friendly TCP listener: each
// Accept returns an already non-blocking, close-on-exec Socket ready to be
// registered with a Reactor.
type Listener struct {
	fd int
}

// Listen binds and listens on laddr with the given accept backlog.
func Listen(laddr netip.AddrPort, backlog int) (*Listener, error) {
	domain := unix.AF_INET
	if laddr.Addr().Is6() {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt(SO_REUSEADDR)", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setnonblock", err)
	}
	if err := unix.Bind(fd, sockaddrFromAddrPort(laddr)); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	return &Listener{fd: fd}, nil
}

// Accept returns the next connected socket, or unix.EAGAIN if none is
// pending; callers drive this off a Poller readable edge on the listener's
// own descriptor.
func (l *Listener) Accept() (*Socket, error) {
	fd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Socket{fd: fd, generation: atomic.LoadInt64(&generationCounter)}, nil
}

// FD satisfies the same minimal descriptor surface a Reactor registers
// against; a listener has no PosixInterface methods of its own beyond
// this since the endpoint never talks to it directly.
func (l *Listener) FD() int { return l.fd }

func (l *Listener) Close() error { return unix.Close(l.fd) }

package posix

import (
	"fmt"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// DialOptions configures socket creation. Zero value dials with the
// platform defaults.
type DialOptions struct {
	// KeepAlive enables TCP keepalive with the given interval; zero
	// leaves the platform default keepalive settings untouched.
	KeepAlive time.Duration
	// NoDelay is not consulted: Dial always disables Nagle's algorithm
	// (TCP_NODELAY), whatever this field holds.
	NoDelay bool
}

// Dial creates a non-blocking TCP socket and connects it to raddr,
// blocking the calling goroutine until the connection completes or fails.
// It is meant for use before an endpoint exists to drive readiness
// through a Poller; once New returns, all further I/O goes through
// RecvMsg/SendMsg.
func Dial(raddr netip.AddrPort, opts DialOptions) (*Socket, error) {
	domain := unix.AF_INET
	if raddr.Addr().Is6() {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setnonblock", err)
	}
	unix.CloseOnExec(fd)

	if opts.NoDelay || true { // NoDelay is the sane default for an RPC transport
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}
	if opts.KeepAlive > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		applyKeepAliveInterval(fd, opts.KeepAlive)
	}

	sa := sockaddrFromAddrPort(raddr)
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, os.NewSyscallError("connect", err)
	}

	if err := waitWritable(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if serr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("getsockopt(SO_ERROR)", err)
	} else if serr != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("posix: connect to %s: %w", raddr, unix.Errno(serr))
	}

	return &Socket{fd: fd, generation: atomic.LoadInt64(&generationCounter), peer: raddr}, nil
}

// FromFD wraps an already-connected, already-non-blocking descriptor
// (typically handed off by a listener's Accept). Ownership of fd passes
// to the returned Socket.
func FromFD(fd int) *Socket {
	return &Socket{fd: fd, generation: atomic.LoadInt64(&generationCounter)}
}

func waitWritable(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("poll", err)
		}
		if n > 0 {
			return nil
		}
	}
}

func sockaddrFromAddrPort(ap netip.AddrPort) unix.Sockaddr {
	if ap.Addr().Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ap.Addr().As16()}
}

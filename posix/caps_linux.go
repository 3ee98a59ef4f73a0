//go:build linux

package posix

import (
	"time"

	"golang.org/x/sys/unix"
)

// SupportsZeroCopy reports whether this platform can be asked to
// negotiate SO_ZEROCOPY. The endpoint still confirms the kernel actually
// accepted it via SetSockOptInt's return value; this only gates whether
// it's worth asking.
func SupportsZeroCopy() bool { return true }

// SupportsErrorQueue reports whether MSG_ERRQUEUE-based completions
// (zero-copy notifications, SO_TIMESTAMPING) are available.
func SupportsErrorQueue() bool { return true }

func applyKeepAliveInterval(fd int, d time.Duration) {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, secs)
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, secs)
}

//go:build !linux

package posix

import (
	"time"

	"golang.org/x/sys/unix"
)

// SupportsZeroCopy is false everywhere but Linux: SO_ZEROCOPY and
// MSG_ZEROCOPY are Linux-only kernel features.
func SupportsZeroCopy() bool { return false }

// SupportsErrorQueue is false everywhere but Linux: MSG_ERRQUEUE and
// SO_TIMESTAMPING completions are delivered the same way SO_ZEROCOPY is.
func SupportsErrorQueue() bool { return false }

func applyKeepAliveInterval(fd int, d time.Duration) {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPALIVE, secs)
}

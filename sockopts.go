package tcpendpoint

import "golang.org/x/sys/unix"

// Sockopt levels/names and msg flags the write and error-queue paths need.
// Centralized here so the rest of the package reads like protocol logic
// rather than a scatter of magic numbers, following the same
// constants-up-top layout nebula uses for its firewall rule encodings.
const (
	solSocket = unix.SOL_SOCKET
	solTCP    = unix.IPPROTO_TCP

	soZeroCopy     = unix.SO_ZEROCOPY
	soRcvLowat     = unix.SO_RCVLOWAT
	soTimestamping = unix.SO_TIMESTAMPING

	// soTimestampingOptStats is Linux's SCM_TIMESTAMPING_OPT_STATS cmsg
	// type: the kernel attaches it alongside SCM_TIMESTAMPING when
	// SOF_TIMESTAMPING_OPT_STATS was requested.
	soTimestampingOptStats = unix.SCM_TIMESTAMPING_OPT_STATS

	msgZeroCopy  = unix.MSG_ZEROCOPY
	msgErrQueue  = unix.MSG_ERRQUEUE
	msgNoSignal  = unix.MSG_NOSIGNAL
	msgCtrunc    = unix.MSG_CTRUNC

	soEEOriginTimestamping = unix.SO_EE_ORIGIN_TIMESTAMPING
	soEEOriginZeroCopy     = unix.SO_EE_ORIGIN_ZEROCOPY

	// tcpInq/tcpCMInq are not yet exposed by every golang.org/x/sys/unix
	// build tag combination; the values are stable across kernel versions
	// (include/uapi/linux/tcp.h) so they're kept as local fallbacks.
	tcpInq   = 36
	tcpCMInq = 36

	// kTimestampingRecordingOptions requests software send timestamps
	// plus OPT_STATS; schedule and ack timestamps are not requested.
	// OPT_STATS rides along as its own cmsg whenever the kernel
	// has anything to report for that timestamp.
	kTimestampingRecordingOptions = unix.SOF_TIMESTAMPING_TX_SOFTWARE |
		unix.SOF_TIMESTAMPING_SOFTWARE |
		unix.SOF_TIMESTAMPING_OPT_ID |
		unix.SOF_TIMESTAMPING_OPT_STATS
)

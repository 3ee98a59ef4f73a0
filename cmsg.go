package tcpendpoint

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"
)

// sockExtendedErr mirrors Linux's struct sock_extended_err
// (include/uapi/linux/errqueue.h): 16 bytes, native byte order.
type sockExtendedErr struct {
	Errno  uint32
	Origin uint8
	Type   uint8
	Code   uint8
	Pad    uint8
	Info   uint32
	Data   uint32
}

const sockExtendedErrLen = 16

func decodeSockExtendedErr(data []byte) (sockExtendedErr, bool) {
	if len(data) < sockExtendedErrLen {
		return sockExtendedErr{}, false
	}
	e := sockExtendedErr{
		Errno:  binary.NativeEndian.Uint32(data[0:4]),
		Origin: data[4],
		Type:   data[5],
		Code:   data[6],
		Pad:    data[7],
		Info:   binary.NativeEndian.Uint32(data[8:12]),
		Data:   binary.NativeEndian.Uint32(data[12:16]),
	}
	return e, true
}

// isRecvErrCMsg reports whether level/typ identifies an IP_RECVERR or
// IPV6_RECVERR ancillary message.
func isRecvErrCMsg(level, typ int32) bool {
	if level == unix.SOL_IP && typ == unix.IP_RECVERR {
		return true
	}
	if level == unix.SOL_IPV6 && typ == unix.IPV6_RECVERR {
		return true
	}
	return false
}

// isTimestampingCMsg reports whether level/typ identifies a
// SO_TIMESTAMPING (SCM_TIMESTAMPING) ancillary message.
func isTimestampingCMsg(level, typ int32) bool {
	return level == unix.SOL_SOCKET && typ == soTimestamping
}

// isInqCMsg reports whether level/typ identifies a TCP_CM_INQ ancillary
// message carrying the kernel's in-queue byte hint.
func isInqCMsg(level, typ int32) bool {
	return level == solTCP && typ == tcpCMInq
}

// isOptStatsCMsg reports whether level/typ identifies a
// SCM_TIMESTAMPING_OPT_STATS ancillary message: extra per-completion TCP
// statistics the kernel attaches alongside SCM_TIMESTAMPING when
// SOF_TIMESTAMPING_OPT_STATS was requested.
func isOptStatsCMsg(level, typ int32) bool {
	return level == unix.SOL_SOCKET && typ == soTimestampingOptStats
}

// decodeTimestamping extracts the first non-zero timespec out of an
// SCM_TIMESTAMPING payload (three back-to-back struct timespec: software,
// deprecated hw-transformed, raw hardware).
func decodeTimestamping(data []byte) (time.Time, bool) {
	const timespecLen = 16 // int64 sec + int64 nsec on 64-bit platforms
	for off := 0; off+timespecLen <= len(data); off += timespecLen {
		sec := int64(binary.NativeEndian.Uint64(data[off : off+8]))
		nsec := int64(binary.NativeEndian.Uint64(data[off+8 : off+16]))
		if sec != 0 || nsec != 0 {
			return time.Unix(sec, nsec), true
		}
	}
	return time.Time{}, false
}

// decodeInq extracts the int32 payload of a TCP_CM_INQ ancillary message.
func decodeInq(data []byte) (int, bool) {
	if len(data) < 4 {
		return 0, false
	}
	return int(int32(binary.NativeEndian.Uint32(data[0:4]))), true
}

// OptStats is a decoded SCM_TIMESTAMPING_OPT_STATS payload: the TCP_NLA_*
// netlink attributes (include/uapi/linux/tcp.h) the kernel attached to one
// timestamp completion, keyed by their raw attribute type since the set
// varies across kernel versions.
type OptStats map[uint16]uint64

// decodeOptStats parses an OPT_STATS payload: a run of netlink attributes,
// each a 4-byte header (uint16 total length including the header, uint16
// type) followed by a value padded to a 4-byte boundary. Only 4- and
// 8-byte values are decoded, which covers every TCP_NLA_* attribute the
// kernel currently emits; anything else is skipped rather than failing
// the whole decode.
func decodeOptStats(data []byte) OptStats {
	const attrHeaderLen = 4
	stats := make(OptStats)
	for off := 0; off+attrHeaderLen <= len(data); {
		attrLen := int(binary.NativeEndian.Uint16(data[off : off+2]))
		attrType := binary.NativeEndian.Uint16(data[off+2 : off+4])
		if attrLen < attrHeaderLen || off+attrLen > len(data) {
			break
		}
		if val := data[off+attrHeaderLen : off+attrLen]; len(val) == 8 {
			stats[attrType] = binary.NativeEndian.Uint64(val)
		} else if len(val) == 4 {
			stats[attrType] = uint64(binary.NativeEndian.Uint32(val))
		}
		off += (attrLen + 3) &^ 3 // netlink attributes are 4-byte aligned
	}
	return stats
}

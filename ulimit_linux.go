//go:build linux

package tcpendpoint

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// UlimitInfo is a one-shot, process-wide snapshot of the memlock limits
// that bound how much memory the kernel will let zero-copy sends pin.
// It exists purely for the diagnostic attached to an ENOBUFS-constrained
// zero-copy write; nothing in the read/write loop otherwise consults it.
type UlimitInfo struct {
	// HardMemlockBytes is the configured hard limit found in
	// limits.d/limits.conf, in bytes; -1 means unlimited (or the process
	// holds CAP_SYS_RESOURCE, which bypasses the limit entirely).
	HardMemlockBytes int64

	RLimitMemlockCur uint64
	RLimitMemlockMax uint64

	HasCapSysResource bool
}

const capSysResourceBit = 24 // include/uapi/linux/capability.h: CAP_SYS_RESOURCE

var (
	ulimitOnce sync.Once
	ulimitInfo UlimitInfo
)

// GetUlimitInfo returns the cached ulimit snapshot, probing it on first
// call. The result never changes for the life of the process, matching
// the source behavior this is grounded on: compute lazily, cache forever,
// never re-read.
func GetUlimitInfo() UlimitInfo {
	ulimitOnce.Do(func() {
		ulimitInfo = probeUlimitInfo()
	})
	return ulimitInfo
}

func probeUlimitInfo() UlimitInfo {
	info := UlimitInfo{HardMemlockBytes: -1}
	if v, ok := scanHardMemlock(); ok {
		info.HardMemlockBytes = v
	}

	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlim); err == nil {
		info.RLimitMemlockCur = rlim.Cur
		info.RLimitMemlockMax = rlim.Max
	}

	info.HasCapSysResource = hasCapSysResource()
	if info.HasCapSysResource {
		info.HardMemlockBytes = -1
	}
	return info
}

// scanHardMemlock looks for the first "* hard memlock <value>" line,
// checking /etc/security/limits.d/* (in name order) before falling back
// to /etc/security/limits.conf.
func scanHardMemlock() (int64, bool) {
	var files []string
	if matches, err := filepath.Glob("/etc/security/limits.d/*"); err == nil {
		sort.Strings(matches)
		files = append(files, matches...)
	}
	files = append(files, "/etc/security/limits.conf")

	for _, path := range files {
		if v, ok := scanHardMemlockFile(path); ok {
			return v, true
		}
	}
	return 0, false
}

// scanHardMemlockFile walks the file line by line with bufio.Scanner.
// (A prior version of this probe located the value by searching for a
// newline starting at the wrong cursor and read garbage; scanning
// line-by-line sidesteps that class of bug entirely.)
func scanHardMemlockFile(path string) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] != "*" || fields[1] != "hard" || fields[2] != "memlock" {
			continue
		}
		val := fields[3]
		if val == "unlimited" || val == "infinity" || val == "-1" {
			return -1, true
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		return n * 1024, true // limits.conf memlock values are in KiB
	}
	return 0, false
}

func hasCapSysResource() bool {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "CapEff:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return false
		}
		mask, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return false
		}
		return mask&(1<<capSysResourceBit) != 0
	}
	return false
}

func (u UlimitInfo) String() string {
	hard := "unlimited"
	if u.HardMemlockBytes >= 0 {
		hard = fmt.Sprintf("%d bytes", u.HardMemlockBytes)
	}
	return fmt.Sprintf("hard memlock=%s rlimit_memlock=%d/%d cap_sys_resource=%v",
		hard, u.RLimitMemlockCur, u.RLimitMemlockMax, u.HasCapSysResource)
}

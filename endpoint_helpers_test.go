package tcpendpoint

import (
	"errors"
	"net/netip"

	"golang.org/x/sys/unix"
)

// fakeIface drives a real AF_UNIX socketpair fd through the same
// RecvmsgBuffers/SendmsgBuffers primitives package posix uses, so read/write
// path tests exercise genuine short-read/short-write/EAGAIN behavior rather
// than a hand-simulated one.
type fakeIface struct {
	fd       int
	wrongGen bool
}

var errFakeWrongGeneration = errors.New("fake: wrong generation")

func (f *fakeIface) RecvMsg(buf [][]byte, control []byte, flags int) (int, int, int, []byte, error) {
	if f.wrongGen {
		return 0, 0, 0, nil, errFakeWrongGeneration
	}
	n, oobn, recvFlags, _, err := unix.RecvmsgBuffers(f.fd, buf, control, flags)
	return n, oobn, recvFlags, nil, err
}

func (f *fakeIface) SendMsg(buf [][]byte, control []byte, flags int) (int, error) {
	if f.wrongGen {
		return 0, errFakeWrongGeneration
	}
	return unix.SendmsgBuffers(f.fd, buf, control, nil, flags)
}

func (f *fakeIface) SetSockOptInt(level, opt, value int) error {
	return unix.SetsockoptInt(f.fd, level, opt, value)
}

func (f *fakeIface) GetSockOptInt(level, opt int) (int, error) {
	return unix.GetsockoptInt(f.fd, level, opt)
}

func (f *fakeIface) LocalAddr() (netip.AddrPort, error) { return netip.AddrPort{}, nil }
func (f *fakeIface) PeerAddr() (netip.AddrPort, error)  { return netip.AddrPort{}, nil }
func (f *fakeIface) FD() int                            { return f.fd }

func (f *fakeIface) IsWrongGeneration(err error) bool {
	return errors.Is(err, errFakeWrongGeneration)
}

// fakePoller is a manually-driven stand-in for a real reactor: NotifyOnX
// just records the callback, and the test fires it explicitly with
// SetReadable/SetWritable/SetHasError, matching the edge-triggered contract
// the endpoint expects from a real Poller.
type fakePoller struct {
	iface PosixInterface

	readCB, writeCB, errCB func()
	canTrackErrors         bool

	shutdownCalled bool
	shutdownReason *Status
	orphaned       bool
}

func newFakePoller(fd int) *fakePoller {
	return &fakePoller{iface: &fakeIface{fd: fd}}
}

func (p *fakePoller) NotifyOnRead(cb func())  { p.readCB = cb }
func (p *fakePoller) NotifyOnWrite(cb func()) { p.writeCB = cb }
func (p *fakePoller) NotifyOnError(cb func()) { p.errCB = cb }

func (p *fakePoller) SetReadable() {
	if cb := p.readCB; cb != nil {
		p.readCB = nil
		cb()
	}
}

func (p *fakePoller) SetWritable() {
	if cb := p.writeCB; cb != nil {
		p.writeCB = nil
		cb()
	}
}

func (p *fakePoller) SetHasError() {
	if cb := p.errCB; cb != nil {
		p.errCB = nil
		cb()
	}
}

func (p *fakePoller) CanTrackErrors() bool { return p.canTrackErrors }

func (p *fakePoller) ShutdownHandle(status *Status) {
	p.shutdownCalled = true
	p.shutdownReason = status
}

func (p *fakePoller) OrphanHandle(onDone func(), outFD *int) {
	p.orphaned = true
	if onDone != nil {
		onDone()
	}
}

func (p *fakePoller) Interface() PosixInterface { return p.iface }

// newTestSocketpair returns two connected, non-blocking AF_UNIX
// SOCK_STREAM descriptors.
func newTestSocketpair() (a, b int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, 0, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return 0, 0, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

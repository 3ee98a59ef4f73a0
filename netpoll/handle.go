package netpoll

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/relaycore/tcpendpoint"
)

// unregisterer is implemented by the OS-specific reactor half; Handle
// depends on it rather than the concrete Reactor so the epoll and poll(2)
// backends can share this file unchanged.
type unregisterer interface {
	unregister(fd int)
}

// Handle is one registered descriptor. It holds at most one pending
// callback per edge, exactly mirroring the "at most one outstanding
// NotifyOnX call" contract EndpointCore is written against. A readiness
// event that arrives with no callback waiting is remembered as a pending
// flag so the next NotifyOnX call fires immediately instead of blocking on
// an edge that already happened.
type Handle struct {
	iface          tcpendpoint.PosixInterface
	fd             int
	reactor        unregisterer
	canTrackErrors bool

	mu           sync.Mutex
	readCB       func()
	writeCB      func()
	errCB        func()
	pendingRead  bool
	pendingWrite bool
	pendingError bool
	shutdown     bool
}

func newHandle(iface tcpendpoint.PosixInterface, r unregisterer, canTrackErrors bool) *Handle {
	return &Handle{iface: iface, fd: iface.FD(), reactor: r, canTrackErrors: canTrackErrors}
}

func (h *Handle) NotifyOnRead(cb func())  { h.notify(cb, &h.readCB, &h.pendingRead) }
func (h *Handle) NotifyOnWrite(cb func()) { h.notify(cb, &h.writeCB, &h.pendingWrite) }
func (h *Handle) NotifyOnError(cb func()) { h.notify(cb, &h.errCB, &h.pendingError) }

func (h *Handle) notify(cb func(), slot *func(), pending *bool) {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return
	}
	if *pending {
		*pending = false
		h.mu.Unlock()
		cb()
		return
	}
	*slot = cb
	h.mu.Unlock()
}

func (h *Handle) SetReadable()  { h.fire(&h.readCB, &h.pendingRead) }
func (h *Handle) SetWritable()  { h.fire(&h.writeCB, &h.pendingWrite) }
func (h *Handle) SetHasError()  { h.fire(&h.errCB, &h.pendingError) }

func (h *Handle) fire(slot *func(), pending *bool) {
	h.mu.Lock()
	cb := *slot
	*slot = nil
	if cb == nil {
		*pending = true
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	cb()
}

func (h *Handle) CanTrackErrors() bool { return h.canTrackErrors }

func (h *Handle) Interface() tcpendpoint.PosixInterface { return h.iface }

// ShutdownHandle stops delivering further edges and unregisters the
// descriptor from the reactor, but leaves it open: OrphanHandle owns the
// close-or-hand-back decision.
func (h *Handle) ShutdownHandle(_ *tcpendpoint.Status) {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return
	}
	h.shutdown = true
	h.readCB, h.writeCB, h.errCB = nil, nil, nil
	h.mu.Unlock()
	h.reactor.unregister(h.fd)
}

// OrphanHandle finalizes the registration. If outFD is non-nil the raw
// descriptor is written there instead of being closed.
func (h *Handle) OrphanHandle(onDone func(), outFD *int) {
	h.reactor.unregister(h.fd)
	if outFD != nil {
		*outFD = h.fd
	} else {
		unix.Close(h.fd)
	}
	if onDone != nil {
		onDone()
	}
}

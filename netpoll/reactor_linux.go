//go:build linux

package netpoll

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/relaycore/tcpendpoint"
)

// Reactor is an epoll(7) event loop. All registered descriptors are
// watched edge-triggered (EPOLLET) for both directions at once; a single
// wakeup for a socket can carry EPOLLIN, EPOLLOUT and EPOLLERR
// simultaneously, and each is handed to the matching Handle edge
// independently.
type Reactor struct {
	epfd int
	eg   *errgroup.Group
	ctx  context.Context

	mu      sync.Mutex
	handles map[int]*Handle
}

// New creates a Reactor and starts its event loop under eg, the way
// nebula's service.New ties its accept/relay goroutines to one
// errgroup-derived context so a single failure tears the rest down.
func New(ctx context.Context) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	eg, ctx := errgroup.WithContext(ctx)
	r := &Reactor{epfd: epfd, eg: eg, ctx: ctx, handles: make(map[int]*Handle)}
	eg.Go(r.run)
	return r, nil
}

// Wait blocks until the event loop exits, returning its error.
func (r *Reactor) Wait() error { return r.eg.Wait() }

// Register starts watching iface's descriptor and returns the Poller the
// endpoint should be built with.
func (r *Reactor) Register(iface tcpendpoint.PosixInterface) (*Handle, error) {
	h := newHandle(iface, r, true)

	event := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLERR | unix.EPOLLRDHUP | unix.EPOLLET,
	}
	event.Fd = int32(h.fd)

	r.mu.Lock()
	r.handles[h.fd] = h
	r.mu.Unlock()

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, h.fd, &event); err != nil {
		r.mu.Lock()
		delete(r.handles, h.fd)
		r.mu.Unlock()
		return nil, err
	}
	return h, nil
}

func (r *Reactor) unregister(fd int) {
	r.mu.Lock()
	delete(r.handles, fd)
	r.mu.Unlock()
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (r *Reactor) run() error {
	events := make([]unix.EpollEvent, 128)
	for {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}

		n, err := unix.EpollWait(r.epfd, events, 250)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}

		for i := 0; i < n; i++ {
			r.dispatch(events[i])
		}
	}
}

func (r *Reactor) dispatch(ev unix.EpollEvent) {
	r.mu.Lock()
	h := r.handles[int(ev.Fd)]
	r.mu.Unlock()
	if h == nil {
		return
	}

	if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
		h.SetReadable()
	}
	if ev.Events&unix.EPOLLOUT != 0 {
		h.SetWritable()
	}
	if ev.Events&(unix.EPOLLERR|unix.EPOLLPRI) != 0 {
		h.SetHasError()
	}
}

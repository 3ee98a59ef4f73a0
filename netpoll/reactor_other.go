//go:build !linux

package netpoll

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/relaycore/tcpendpoint"
)

// Reactor is a portable fallback built on poll(2): one goroutine per
// registered descriptor, since unix.Poll itself has no way to add or
// remove a watched fd once it has been called. It never reports
// CanTrackErrors, since MSG_ERRQUEUE completions are Linux-only; the
// endpoint runs without zero-copy or kernel timestamps under this reactor.
type Reactor struct {
	eg  *errgroup.Group
	ctx context.Context

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
}

func New(ctx context.Context) (*Reactor, error) {
	eg, ctx := errgroup.WithContext(ctx)
	return &Reactor{eg: eg, ctx: ctx, cancels: make(map[int]context.CancelFunc)}, nil
}

func (r *Reactor) Wait() error { return r.eg.Wait() }

func (r *Reactor) Register(iface tcpendpoint.PosixInterface) (*Handle, error) {
	h := newHandle(iface, r, false)

	loopCtx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	r.cancels[h.fd] = cancel
	r.mu.Unlock()

	r.eg.Go(func() error { return r.pollLoop(loopCtx, h) })
	return h, nil
}

func (r *Reactor) unregister(fd int) {
	r.mu.Lock()
	cancel := r.cancels[fd]
	delete(r.cancels, fd)
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Reactor) pollLoop(ctx context.Context, h *Handle) error {
	fds := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLIN | unix.POLLOUT}}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := unix.Poll(fds, 250)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		re := fds[0].Revents
		if re&(unix.POLLIN|unix.POLLHUP) != 0 {
			h.SetReadable()
		}
		if re&unix.POLLOUT != 0 {
			h.SetWritable()
		}
		if re&unix.POLLERR != 0 {
			h.SetHasError()
		}
	}
}

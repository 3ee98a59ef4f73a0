// Package netpoll is the concrete Poller: an edge-triggered reactor built
// on epoll (Linux) or a portable poll(2) loop (everywhere else). One
// Reactor multiplexes many registered sockets: on Linux a single epoll
// loop goroutine serves them all, elsewhere one poll(2) goroutine runs per
// socket. Either way the goroutines run under an errgroup, the way nebula's service package
// runs its accept and relay loops under a shared group tied to one
// context.
package netpoll

// Package posix is the concrete PosixInterface: a connected, non-blocking
// stream socket driven through golang.org/x/sys/unix. It is the only
// package in this module that issues raw socket syscalls; everything
// above it (the endpoint, the poller) talks to a Socket only through the
// tcpendpoint.PosixInterface it satisfies.
package posix

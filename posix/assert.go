package posix

import "github.com/relaycore/tcpendpoint"

var _ tcpendpoint.PosixInterface = (*Socket)(nil)

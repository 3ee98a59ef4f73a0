// Command tcpendpoint-echo is a small demonstration server built on this
// module's endpoint: it accepts connections and echoes back whatever it
// reads, exercising the read/write/zero-copy/error-queue paths against a
// real kernel socket.
package main

import "github.com/relaycore/tcpendpoint/cmd/tcpendpoint-echo/cmd"

func main() {
	cmd.Execute()
}

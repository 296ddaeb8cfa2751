package serialmux

import (
	"io"
	"net"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// NewPipePort returns two connected in-memory ends. The host end is handed
// to a SerialMux; the device end is driven by a simulated tracker or a test.
func NewPipePort() (host, device net.Conn) {
	return net.Pipe()
}

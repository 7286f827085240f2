package acceptor

import "net"

type memoryAddr string

var _ net.Addr = memoryAddr("")

func (memoryAddr) Network() string {
	return "memory"
}

func (m memoryAddr) String() string {
	return string(m)
}

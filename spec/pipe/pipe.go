package pipe

import (
	"context"
	"net"
)

const (
	// BufferSize is the size of one read window and of the OS in/out buffers
	BufferSize = 500
	// Sentinel terminates a payload inside a read window
	Sentinel byte = 0xCC
	// MaxInstances is the upper bound of concurrent instances of one named pipe
	MaxInstances = 255
	// MaxBufferSize bounds a configurable read window
	MaxBufferSize = 1 << 20
)

// ListenConfig describes how server side instances of a pipe are created.
type ListenConfig struct {
	BufferSize   int
	MaxInstances int
	// SecurityDescriptor is an SDDL string, only honored on Windows
	SecurityDescriptor string
}

// Factory creates server side pipe instances and client side connections.
// Each Accept on the returned listener waits for a peer on a fresh instance.
type Factory interface {
	Listen(name string, cfg ListenConfig) (net.Listener, error)
	Dial(ctx context.Context, name string) (net.Conn, error)
}

package pipe

import (
	"context"
	"net"

	"go.miragespace.co/scanpipe/spec/pipe"
)

// Factory creates pipes on the host OS: named pipes on Windows and unix
// domain sockets elsewhere. Names without a platform prefix are resolved
// with Path.
type Factory struct{}

var _ pipe.Factory = Factory{}

func (Factory) Listen(name string, cfg pipe.ListenConfig) (net.Listener, error) {
	return ListenPipe(Path(name), cfg)
}

func (Factory) Dial(ctx context.Context, name string) (net.Conn, error) {
	return DialPipe(ctx, Path(name))
}

//go:build windows

package pipe

import (
	"context"
	"net"
	"strings"

	"go.miragespace.co/scanpipe/spec/pipe"

	"github.com/Microsoft/go-winio"
)

const pipePrefix = `\\.\pipe\`

// Path maps a bare pipe name into the local pipe namespace.
func Path(name string) string {
	if strings.HasPrefix(name, `\\`) {
		return name
	}
	return pipePrefix + name
}

func DialPipe(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}

// ListenPipe creates the first duplex, overlapped instance of the pipe; each
// Accept creates the next one. winio does not cap instances, MaxInstances is
// enforced by the caller.
func ListenPipe(path string, cfg pipe.ListenConfig) (net.Listener, error) {
	size := cfg.BufferSize
	if size <= 0 {
		size = pipe.BufferSize
	}
	return winio.ListenPipe(path, &winio.PipeConfig{
		SecurityDescriptor: cfg.SecurityDescriptor,
		MessageMode:        false,
		InputBufferSize:    int32(size),
		OutputBufferSize:   int32(size),
	})
}

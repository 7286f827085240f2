//go:build !(windows || unix)

package pipe

import (
	"context"
	"errors"
	"net"

	"go.miragespace.co/scanpipe/spec/pipe"
)

func Path(name string) string {
	return name
}

func DialPipe(ctx context.Context, path string) (net.Conn, error) {
	return nil, errors.New("Not implemented")
}

func ListenPipe(path string, cfg pipe.ListenConfig) (net.Listener, error) {
	return nil, errors.New("Not implemented")
}

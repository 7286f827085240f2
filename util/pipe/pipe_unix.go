//go:build unix

package pipe

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.miragespace.co/scanpipe/spec/pipe"

	"golang.org/x/sys/unix"
)

const staleProbeTimeout = time.Millisecond * 250

// Path maps a bare pipe name to a socket path in the temporary directory.
// Absolute paths and paths containing a separator are used as is.
func Path(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, os.PathSeparator) {
		return name
	}
	return filepath.Join(os.TempDir(), name+".sock")
}

func DialPipe(ctx context.Context, path string) (net.Conn, error) {
	dialer := &net.Dialer{}
	return dialer.DialContext(ctx, "unix", path)
}

// ListenPipe listens on a unix socket. A socket file left behind by a dead
// server is removed; a live one is reported as a collision. Unix sockets have
// neither instance limits nor configurable buffers, so cfg is not consulted.
func ListenPipe(path string, cfg pipe.ListenConfig) (net.Listener, error) {
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}
	return net.Listen("unix", path)
}

func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return &os.PathError{Op: "listen", Path: path, Err: unix.EEXIST}
	}

	ctx, cancel := context.WithTimeout(context.Background(), staleProbeTimeout)
	defer cancel()

	conn, err := DialPipe(ctx, path)
	if err == nil {
		conn.Close()
		return &os.PathError{Op: "listen", Path: path, Err: unix.EADDRINUSE}
	}
	if !errors.Is(err, unix.ECONNREFUSED) {
		return err
	}
	return os.Remove(path)
}

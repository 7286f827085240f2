package acceptor

import (
	"context"
	"fmt"
	"net"
	"os"

	"go.miragespace.co/scanpipe/spec/pipe"

	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/atomic"
)

// MemoryListener hands out the server side of in-process duplex connections.
// Like a pipe instance waiting in ConnectNamedPipe, a Dial only completes once
// the listener has accepted it.
type MemoryListener struct {
	name    string
	conn    chan net.Conn
	closeCh chan struct{}
	closed  atomic.Bool
	onClose func()
}

var _ net.Listener = (*MemoryListener)(nil)

func NewMemoryListener(name string) *MemoryListener {
	return &MemoryListener{
		name:    name,
		conn:    make(chan net.Conn),
		closeCh: make(chan struct{}),
	}
}

// Handle passes an already established connection to Accept.
func (m *MemoryListener) Handle(ctx context.Context, c net.Conn) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closeCh:
		return net.ErrClosed
	case m.conn <- c:
		return nil
	}
}

// Dial connects a new peer and returns its side of the connection.
func (m *MemoryListener) Dial(ctx context.Context) (net.Conn, error) {
	server, client := net.Pipe()
	if err := m.Handle(ctx, server); err != nil {
		server.Close()
		client.Close()
		return nil, err
	}
	return client, nil
}

func (m *MemoryListener) Accept() (net.Conn, error) {
	select {
	case <-m.closeCh:
		return nil, net.ErrClosed
	case c := <-m.conn:
		return c, nil
	}
}

func (m *MemoryListener) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.closeCh)
	if m.onClose != nil {
		m.onClose()
	}
	return nil
}

func (m *MemoryListener) Addr() net.Addr {
	return memoryAddr(m.name)
}

// MemoryFactory is a pipe.Factory whose pipes only exist inside the process.
type MemoryFactory struct {
	listeners *skipmap.StringMap[*MemoryListener]
}

var _ pipe.Factory = (*MemoryFactory)(nil)

func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{
		listeners: skipmap.NewString[*MemoryListener](),
	}
}

func (f *MemoryFactory) Listen(name string, _ pipe.ListenConfig) (net.Listener, error) {
	l := NewMemoryListener(name)
	if _, loaded := f.listeners.LoadOrStore(name, l); loaded {
		return nil, fmt.Errorf("pipe %q is already in use", name)
	}
	l.onClose = func() {
		f.listeners.Delete(name)
	}
	return l, nil
}

func (f *MemoryFactory) Dial(ctx context.Context, name string) (net.Conn, error) {
	l, ok := f.listeners.Load(name)
	if !ok {
		return nil, fmt.Errorf("pipe %q: %w", name, os.ErrNotExist)
	}
	return l.Dial(ctx)
}

package ipc

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"go.miragespace.co/scanpipe/spec/pipe"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Connection is one accepted peer. It exclusively owns its pipe instance.
type Connection struct {
	id        uint64
	conn      net.Conn
	transport *Transport
	logger    *zap.Logger

	writeMu sync.Mutex
	writer  *bufio.Writer

	closed      atomic.Bool
	releaseOnce sync.Once
	err         atomic.Error
}

func newConnection(t *Transport, id uint64, conn net.Conn) *Connection {
	return &Connection{
		id:        id,
		conn:      conn,
		transport: t,
		logger:    t.Logger.With(zap.Uint64("conn", id)),
		writer:    bufio.NewWriterSize(conn, t.BufferSize),
	}
}

func (c *Connection) ID() uint64 {
	return c.id
}

func (c *Connection) Mode() pipe.Mode {
	return c.transport.Mode
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Writable reports whether Send can currently write to the peer.
func (c *Connection) Writable() bool {
	return !c.closed.Load()
}

// Err returns the error that tore down the connection, if any.
func (c *Connection) Err() error {
	return c.err.Load()
}

// Send encodes msg with the transport charset and writes it in full before
// returning. Nothing is written and ErrWriteNotReady is returned when the
// connection is not writable. With sentinel framing no terminator is added.
func (c *Connection) Send(msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.Writable() {
		return pipe.ErrWriteNotReady
	}

	payload := c.transport.Charset.Encode(msg)
	err := c.transport.Framing.WriteMessage(c.writer, payload)
	if err == nil {
		err = c.writer.Flush()
	}
	if err != nil {
		err = fmt.Errorf("writing to pipe connection %d: %w", c.id, err)
		c.release(err)
		return err
	}
	return nil
}

// Close disconnects the peer and releases the pipe instance.
func (c *Connection) Close() error {
	c.release(nil)
	return nil
}

func (c *Connection) release(cause error) {
	c.releaseOnce.Do(func() {
		c.closed.Store(true)
		if cause != nil {
			c.err.Store(cause)
		}

		c.conn.Close()
		c.transport.unregister(c)

		ev := Event{
			Type:       EventDisconnected,
			Connection: c,
			Err:        cause,
		}
		if cause != nil {
			ev.Type = EventErrored
			c.logger.Warn("Pipe connection terminated", zap.Error(cause))
		} else {
			c.logger.Debug("Pipe connection closed")
		}
		c.transport.emit(ev)
		c.transport.live.Done()
	})
}

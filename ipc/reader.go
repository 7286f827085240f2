package ipc

import (
	"errors"
	"fmt"
	"io"

	"go.miragespace.co/scanpipe/spec/pipe"

	"go.uber.org/zap"
)

func (t *Transport) readLoop(c *Connection) {
	defer t.wg.Done()

	buf := t.buffers.Get()
	defer t.buffers.Put(buf)

	rd := t.Framing.NewReader(c.conn, buf)
	for {
		msg, err := rd.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), c.closed.Load():
				c.release(nil)
			default:
				c.release(fmt.Errorf("%w: %w", pipe.ErrRead, err))
			}
			return
		}

		if len(msg) == 0 {
			continue
		}

		text := t.Charset.Decode(msg)
		t.messages.Inc()
		t.bytes.Add(uint64(len(msg)))

		c.logger.Debug("Received message", zap.Int("bytes", len(msg)))

		t.Handler(c, text)
	}
}

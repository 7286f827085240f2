package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.miragespace.co/scanpipe/spec/frame"
	"go.miragespace.co/scanpipe/spec/pipe"
	"go.miragespace.co/scanpipe/timing"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// peer speaks to a scanpipe server the way the native analyzer does.
type peer struct {
	conn       net.Conn
	framing    frame.Framing
	charset    frame.Charset
	bufferSize int
	pad        bool
}

type peerConfig struct {
	logger     *zap.Logger
	factory    pipe.Factory
	name       string
	framing    frame.Framing
	charset    frame.Charset
	bufferSize int
	pad        bool
	attempts   uint
	timeout    time.Duration
	replyWait  time.Duration
}

func dialPeer(ctx context.Context, cfg peerConfig) (*peer, error) {
	conn, err := retry.DoWithData(func() (net.Conn, error) {
		dialCtx := ctx
		if cfg.timeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
		return cfg.factory.Dial(dialCtx, cfg.name)
	},
		retry.Context(ctx),
		retry.Attempts(cfg.attempts),
		retry.Delay(timing.PipeDialRetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			cfg.logger.Debug("Pipe is not available yet, retrying", zap.String("pipe", cfg.name), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to pipe %s: %w", cfg.name, err)
	}
	return &peer{
		conn:       conn,
		framing:    cfg.framing,
		charset:    cfg.charset,
		bufferSize: cfg.bufferSize,
		pad:        cfg.pad,
	}, nil
}

// encode frames msg so that the server's reader delivers exactly msg.
func (p *peer) encode(msg string) ([]byte, error) {
	payload := p.charset.Encode(msg)
	if p.framing == frame.LengthPrefixed {
		return payload, nil
	}
	if err := frame.Validate(payload, p.bufferSize); err != nil {
		return nil, err
	}
	if p.pad {
		return frame.Pad(payload, p.bufferSize)
	}
	if len(payload) < p.bufferSize {
		return frame.Terminate(payload), nil
	}
	return payload, nil
}

func (p *peer) send(msg string) (int, error) {
	b, err := p.encode(msg)
	if err != nil {
		return 0, err
	}
	if err := p.framing.WriteMessage(p.conn, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *peer) receive(timeout time.Duration) (string, error) {
	if timeout > 0 {
		p.conn.SetReadDeadline(time.Now().Add(timeout))
		defer p.conn.SetReadDeadline(time.Time{})
	}
	rd := p.framing.NewReader(p.conn, make([]byte, p.bufferSize))
	msg, err := rd.ReadMessage()
	if err != nil {
		return "", err
	}
	return p.charset.Decode(msg), nil
}

func (p *peer) Close() error {
	return p.conn.Close()
}

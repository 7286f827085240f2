package ipc

import (
	"errors"
	"fmt"
	"time"

	"go.miragespace.co/scanpipe/spec/frame"
	"go.miragespace.co/scanpipe/spec/pipe"
	"go.miragespace.co/scanpipe/timing"
	pipeImpl "go.miragespace.co/scanpipe/util/pipe"

	"go.uber.org/zap"
)

// MessageHandler receives every decoded message of a read mode connection.
// It runs on the connection's reader goroutine, so messages of one
// connection are handled in the order they were read. Stop waits for reader
// goroutines and must not be called from a handler.
type MessageHandler func(c *Connection, text string)

// EventHandler observes connection lifecycle. It must not block and must not
// call Stop.
type EventHandler func(Event)

type TransportConfig struct {
	Logger  *zap.Logger
	Factory pipe.Factory
	Name    string
	Mode    pipe.Mode
	Handler MessageHandler
	OnEvent EventHandler

	BufferSize         int
	MaxInstances       int
	SecurityDescriptor string
	Framing            frame.Framing
	Charset            frame.Charset

	// AcceptRetryAttempts is the number of times a failed accept is retried
	// before the connection loop gives up. Zero keeps the loop fatal on the
	// first failure.
	AcceptRetryAttempts uint
	AcceptRetryDelay    time.Duration
}

func (c *TransportConfig) validate() error {
	if c.Name == "" {
		return errors.New("pipe name is required")
	}
	switch c.Mode {
	case pipe.ModeRead:
		if c.Handler == nil {
			return errors.New("read mode transport requires a message handler")
		}
	case pipe.ModeWrite:
	default:
		return fmt.Errorf("unknown pipe mode %d", int(c.Mode))
	}
	switch c.Framing {
	case frame.Sentinel, frame.LengthPrefixed:
	default:
		return fmt.Errorf("unknown framing %d", int(c.Framing))
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Factory == nil {
		c.Factory = pipeImpl.Factory{}
	}
	if c.Charset == nil {
		c.Charset = frame.Latin1
	}
	if c.BufferSize == 0 {
		c.BufferSize = pipe.BufferSize
	}
	if c.BufferSize < 0 || c.BufferSize > pipe.MaxBufferSize {
		return fmt.Errorf("invalid buffer size %d, must be between 1 and %d", c.BufferSize, pipe.MaxBufferSize)
	}
	if c.MaxInstances == 0 {
		c.MaxInstances = pipe.MaxInstances
	}
	if c.MaxInstances < 0 || c.MaxInstances > pipe.MaxInstances {
		return fmt.Errorf("max instances must be between 1 and %d, got %d", pipe.MaxInstances, c.MaxInstances)
	}
	if c.AcceptRetryAttempts > 0 && c.AcceptRetryDelay <= 0 {
		c.AcceptRetryDelay = timing.AcceptRetryDelay
	}
	return nil
}

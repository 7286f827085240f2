package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.miragespace.co/scanpipe/spec/pipe"
	"go.miragespace.co/scanpipe/util"

	"github.com/avast/retry-go/v4"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Transport serves one named pipe. A single accept goroutine hands out pipe
// instances to peers, bounded by MaxInstances, and in read mode every
// connection gets a reader goroutine of its own.
type Transport struct {
	TransportConfig

	connections *skipmap.Uint64Map[*Connection]
	slots       *semaphore.Weighted
	buffers     *util.BufferPool
	nextID      atomic.Uint64

	lifecycle sync.Mutex
	listener  net.Listener
	cancel    context.CancelFunc
	wg        sync.WaitGroup // reader goroutines
	live      sync.WaitGroup // connections not yet fully released
	done      chan struct{}
	doneOnce  sync.Once
	loopErr   atomic.Error

	started atomic.Bool
	closed  atomic.Bool

	accepted atomic.Uint64
	messages atomic.Uint64
	bytes    atomic.Uint64
}

// Stats is a point in time snapshot of transport counters.
type Stats struct {
	Accepted uint64
	Active   uint64
	Messages uint64
	Bytes    uint64
}

func New(conf TransportConfig) (*Transport, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}
	conf.Logger = conf.Logger.With(zap.String("pipe", conf.Name))
	return &Transport{
		TransportConfig: conf,
		connections:     skipmap.NewUint64[*Connection](),
		slots:           semaphore.NewWeighted(int64(conf.MaxInstances)),
		buffers:         util.NewBufferPool(conf.BufferSize),
		done:            make(chan struct{}),
	}, nil
}

// Start creates the pipe and runs the connection loop in the background.
// Cancelling ctx has the same effect on the loop and on every connection as
// Stop, except that it does not wait for them to exit.
func (t *Transport) Start(ctx context.Context) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.closed.Load() {
		return pipe.ErrClosed
	}
	if !t.started.CompareAndSwap(false, true) {
		return pipe.ErrAlreadyStarted
	}

	l, err := t.Factory.Listen(t.Name, pipe.ListenConfig{
		BufferSize:         t.BufferSize,
		MaxInstances:       t.MaxInstances,
		SecurityDescriptor: t.SecurityDescriptor,
	})
	if err != nil {
		err = fmt.Errorf("%w %s: %w", pipe.ErrCreation, t.Name, err)
		t.loopErr.Store(err)
		t.finish()
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.listener = l
	t.cancel = cancel
	context.AfterFunc(loopCtx, func() {
		t.shutdown(l)
	})

	t.Logger.Info("Accepting pipe connections",
		zap.String("listen", l.Addr().String()),
		zap.Stringer("mode", t.Mode),
		zap.Stringer("framing", t.Framing),
		zap.Int("maxInstances", t.MaxInstances),
	)

	go t.acceptLoop(loopCtx, l)
	return nil
}

func (t *Transport) acceptLoop(ctx context.Context, l net.Listener) {
	defer t.finish()
	defer l.Close()

	for {
		if err := t.slots.Acquire(ctx, 1); err != nil {
			return
		}

		conn, err := t.accept(ctx, l)
		if err != nil {
			t.slots.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			err = fmt.Errorf("%w %s: %w", pipe.ErrConnect, t.Name, err)
			t.loopErr.Store(err)
			t.Logger.Error("Connection loop terminated", zap.Error(err))
			return
		}

		c := t.register(conn)
		if ctx.Err() != nil {
			// shutdown may have walked the registry before c was stored
			c.Close()
			continue
		}

		if t.Mode == pipe.ModeRead {
			t.wg.Add(1)
			go t.readLoop(c)
		}
	}
}

func (t *Transport) accept(ctx context.Context, l net.Listener) (net.Conn, error) {
	if t.AcceptRetryAttempts == 0 {
		return l.Accept()
	}
	jitter := t.AcceptRetryDelay / 2
	if jitter <= 0 {
		jitter = 1
	}
	return retry.DoWithData(l.Accept,
		retry.Context(ctx),
		retry.Attempts(t.AcceptRetryAttempts+1),
		retry.Delay(t.AcceptRetryDelay),
		retry.MaxJitter(jitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, net.ErrClosed)
		}),
		retry.OnRetry(func(n uint, err error) {
			t.Logger.Warn("Failed to accept pipe client, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func (t *Transport) register(conn net.Conn) *Connection {
	c := newConnection(t, t.nextID.Inc(), conn)
	t.live.Add(1)
	t.connections.Store(c.id, c)
	t.accepted.Inc()

	c.logger.Debug("Pipe client connected")
	t.emit(Event{
		Type:       EventConnected,
		Connection: c,
	})
	return c
}

func (t *Transport) unregister(c *Connection) {
	if _, ok := t.connections.LoadAndDelete(c.id); ok {
		t.slots.Release(1)
	}
}

func (t *Transport) emit(ev Event) {
	if t.OnEvent != nil {
		t.OnEvent(ev)
	}
}

func (t *Transport) shutdown(l net.Listener) {
	l.Close()
	t.connections.Range(func(_ uint64, c *Connection) bool {
		c.Close()
		return true
	})
}

func (t *Transport) finish() {
	t.doneOnce.Do(func() {
		close(t.done)
	})
}

// Send writes msg to c, see Connection.Send.
func (t *Transport) Send(c *Connection, msg string) error {
	if c == nil {
		return pipe.ErrWriteNotReady
	}
	return c.Send(msg)
}

// Connection returns a live connection by its ID.
func (t *Transport) Connection(id uint64) (*Connection, bool) {
	return t.connections.Load(id)
}

// Connections returns the live connections ordered by ID.
func (t *Transport) Connections() []*Connection {
	conns := make([]*Connection, 0, t.connections.Len())
	t.connections.Range(func(_ uint64, c *Connection) bool {
		conns = append(conns, c)
		return true
	})
	return conns
}

func (t *Transport) Stats() Stats {
	return Stats{
		Accepted: t.accepted.Load(),
		Active:   uint64(t.connections.Len()),
		Messages: t.messages.Load(),
		Bytes:    t.bytes.Load(),
	}
}

// Done is closed once the connection loop has exited.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that terminated the connection loop. It is nil while
// the loop runs and after a clean Stop.
func (t *Transport) Err() error {
	return t.loopErr.Load()
}

// Stop closes the pipe and every live connection, then waits for the
// connection loop and all readers to exit.
func (t *Transport) Stop() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}

	t.lifecycle.Lock()
	l, cancel := t.listener, t.cancel
	t.lifecycle.Unlock()

	if cancel == nil {
		t.finish()
		return
	}

	cancel()
	t.shutdown(l)
	<-t.done
	t.wg.Wait()
	// the cancellation callback may still be releasing connections that
	// shutdown above found already removed from the registry
	t.live.Wait()

	t.Logger.Info("Pipe transport stopped", zap.Uint64("accepted", t.accepted.Load()))
}

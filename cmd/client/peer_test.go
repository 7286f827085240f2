package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.miragespace.co/scanpipe/ipc"
	"go.miragespace.co/scanpipe/spec/frame"
	"go.miragespace.co/scanpipe/spec/pipe"
	"go.miragespace.co/scanpipe/util/acceptor"
	"go.miragespace.co/scanpipe/util/testcond"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type echoServer struct {
	sync.Mutex
	received []string
}

func (e *echoServer) handle(c *ipc.Connection, text string) {
	e.Lock()
	e.received = append(e.received, text)
	e.Unlock()
	c.Send(strings.ToUpper(text))
}

func (e *echoServer) messages() []string {
	e.Lock()
	defer e.Unlock()
	return append([]string(nil), e.received...)
}

func startServer(t *testing.T, framing frame.Framing) (*acceptor.MemoryFactory, *echoServer) {
	as := require.New(t)
	logger := zaptest.NewLogger(t)

	f := acceptor.NewMemoryFactory()
	srv := &echoServer{}
	transport, err := ipc.New(ipc.TransportConfig{
		Logger:  logger,
		Factory: f,
		Name:    "analyzer",
		Mode:    pipe.ModeRead,
		Framing: framing,
		Handler: srv.handle,
	})
	as.NoError(err)
	as.NoError(transport.Start(context.Background()))
	t.Cleanup(transport.Stop)

	return f, srv
}

func testPeerConfig(t *testing.T, f pipe.Factory, framing frame.Framing) peerConfig {
	return peerConfig{
		logger:     zaptest.NewLogger(t),
		factory:    f,
		name:       "analyzer",
		framing:    framing,
		charset:    frame.ASCII,
		bufferSize: pipe.BufferSize,
		attempts:   1,
		timeout:    time.Second * 3,
		replyWait:  time.Second * 3,
	}
}

func TestPeerSendReceive(t *testing.T) {
	for _, tc := range []struct {
		name    string
		framing frame.Framing
		pad     bool
	}{
		{name: "terminated", framing: frame.Sentinel},
		{name: "padded", framing: frame.Sentinel, pad: true},
		{name: "length prefixed", framing: frame.LengthPrefixed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			as := require.New(t)
			f, srv := startServer(t, tc.framing)

			cfg := testPeerConfig(t, f, tc.framing)
			cfg.pad = tc.pad
			p, err := dialPeer(context.Background(), cfg)
			as.NoError(err)
			defer p.Close()

			n, err := p.send("clean")
			as.NoError(err)
			if tc.pad {
				as.Equal(pipe.BufferSize, n)
			}

			reply, err := p.receive(time.Second * 3)
			as.NoError(err)
			as.Equal("CLEAN", reply)
			as.Equal([]string{"clean"}, srv.messages())
		})
	}
}

func TestPeerEncode(t *testing.T) {
	as := require.New(t)

	p := &peer{framing: frame.Sentinel, charset: frame.ASCII, bufferSize: 4}

	b, err := p.encode("abc")
	as.NoError(err)
	as.Equal([]byte("abc\xcc"), b)

	// a full window needs no terminator
	b, err = p.encode("abcd")
	as.NoError(err)
	as.Equal([]byte("abcd"), b)

	_, err = p.encode("abcde")
	as.ErrorIs(err, frame.ErrFrameTooLarge)

	p.charset = frame.Latin1
	_, err = p.encode("aÌb")
	as.ErrorIs(err, frame.ErrSentinelInPayload)

	p.framing = frame.LengthPrefixed
	b, err = p.encode("aÌb")
	as.NoError(err)
	as.Equal([]byte{'a', 0xcc, 'b'}, b)
}

func TestDialPeerRetry(t *testing.T) {
	as := require.New(t)

	f := acceptor.NewMemoryFactory()
	cfg := testPeerConfig(t, f, frame.Sentinel)
	cfg.attempts = 2
	cfg.timeout = time.Millisecond * 100

	_, err := dialPeer(context.Background(), cfg)
	as.Error(err)
	as.Contains(err.Error(), "analyzer")
}

func TestFlood(t *testing.T) {
	as := require.New(t)
	f, srv := startServer(t, frame.Sentinel)

	cfg := testPeerConfig(t, f, frame.Sentinel)
	results := flood(context.Background(), cfg, 32, "sample", true)
	as.Len(results, 32)

	expected := make([]string, 0, len(results))
	for i, r := range results {
		as.NoError(r.err)
		as.Equal(i, r.peer)
		as.Equal(fmt.Sprintf("sample-%03d", i), r.message)
		as.Equal(strings.ToUpper(r.message), r.reply)
		expected = append(expected, r.message)
	}

	as.NoError(testcond.WaitForCondition(func() bool {
		return len(srv.messages()) == len(expected)
	}, time.Millisecond*10, time.Second*3))
	got := srv.messages()
	sort.Strings(got)
	as.Equal(expected, got)
}

func TestFormatFlood(t *testing.T) {
	as := require.New(t)

	var out bytes.Buffer
	failed := formatFlood([]floodResult{
		{peer: 0, message: "sample-000", bytes: 11, reply: "SAMPLE-000"},
		{peer: 1, message: "sample-001", err: errors.New("pipe busy")},
	}, &out)
	as.Equal(1, failed)

	rendered := out.String()
	as.Contains(rendered, "sample-000")
	as.Contains(rendered, "SAMPLE-000")
	as.Contains(rendered, "pipe busy")
	as.Contains(rendered, "1/2")
}

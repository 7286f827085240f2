package frame

import (
	"bytes"
	"io"
	"math/rand"
	"net"
	"testing"

	"go.miragespace.co/scanpipe/spec/pipe"

	"github.com/stretchr/testify/require"
)

func randomText(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Intn(256))
		if b[i] == pipe.Sentinel {
			b[i] = 'x'
		}
	}
	return b
}

func TestPayloadCutsAtFirstSentinel(t *testing.T) {
	as := require.New(t)
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		buf := make([]byte, pipe.BufferSize)
		r.Read(buf)
		idx := r.Intn(pipe.BufferSize)
		for j := 0; j < idx; j++ {
			if buf[j] == pipe.Sentinel {
				buf[j] = 0
			}
		}
		buf[idx] = pipe.Sentinel

		as.Len(Payload(buf), idx)
	}
}

func TestPayloadWithoutSentinel(t *testing.T) {
	as := require.New(t)

	buf := bytes.Repeat([]byte{'x'}, pipe.BufferSize)
	as.Equal(buf, Payload(buf))
	as.Empty(Payload([]byte{pipe.Sentinel, 'a'}))
}

func TestSentinelReaderScenario(t *testing.T) {
	as := require.New(t)

	window := make([]byte, pipe.BufferSize)
	copy(window, []byte{0x41, 0x42, 0x43, pipe.Sentinel})

	rd := Sentinel.NewReader(bytes.NewReader(window), make([]byte, pipe.BufferSize))
	msg, err := rd.ReadMessage()
	as.NoError(err)
	as.Equal("ABC", string(msg))

	_, err = rd.ReadMessage()
	as.ErrorIs(err, io.EOF)
}

func TestSentinelReaderFullWindow(t *testing.T) {
	as := require.New(t)

	window := bytes.Repeat([]byte{'z'}, pipe.BufferSize)
	rd := Sentinel.NewReader(bytes.NewReader(window), make([]byte, pipe.BufferSize))
	msg, err := rd.ReadMessage()
	as.NoError(err)
	as.Len(msg, pipe.BufferSize)
}

func TestSentinelReaderFragmentsLongMessages(t *testing.T) {
	as := require.New(t)

	long := bytes.Repeat([]byte{'q'}, pipe.BufferSize+20)
	rd := Sentinel.NewReader(bytes.NewReader(long), make([]byte, pipe.BufferSize))

	first, err := rd.ReadMessage()
	as.NoError(err)
	as.Len(first, pipe.BufferSize)

	second, err := rd.ReadMessage()
	as.NoError(err)
	as.Len(second, 20)
}

func TestSentinelRoundTrip(t *testing.T) {
	as := require.New(t)
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		msg := randomText(r, 1+r.Intn(pipe.BufferSize))

		c1, c2 := net.Pipe()
		go func() {
			defer c1.Close()
			Sentinel.WriteMessage(c1, msg)
		}()

		rd := Sentinel.NewReader(c2, make([]byte, pipe.BufferSize))
		got, err := rd.ReadMessage()
		as.NoError(err)
		as.Equal(msg, got)
		as.Equal(msg, Latin1.Encode(Latin1.Decode(got)))
		c2.Close()
	}
}

func TestLengthPrefixedRoundTrip(t *testing.T) {
	as := require.New(t)

	var wire bytes.Buffer
	msgs := [][]byte{
		[]byte("hello"),
		{pipe.Sentinel, 0x00, pipe.Sentinel},
		{},
		bytes.Repeat([]byte{'a'}, pipe.BufferSize),
	}
	for _, m := range msgs {
		as.NoError(LengthPrefixed.WriteMessage(&wire, m))
	}

	rd := LengthPrefixed.NewReader(&wire, make([]byte, pipe.BufferSize))
	for _, m := range msgs {
		got, err := rd.ReadMessage()
		as.NoError(err)
		as.Equal(m, got)
	}

	_, err := rd.ReadMessage()
	as.ErrorIs(err, io.EOF)
}

func TestLengthPrefixedRejectsOversized(t *testing.T) {
	as := require.New(t)

	var wire bytes.Buffer
	as.NoError(LengthPrefixed.WriteMessage(&wire, bytes.Repeat([]byte{'a'}, 64)))

	rd := LengthPrefixed.NewReader(&wire, make([]byte, 32))
	_, err := rd.ReadMessage()
	as.ErrorIs(err, ErrFrameTooLarge)
}

func TestLengthPrefixedTruncatedFrame(t *testing.T) {
	as := require.New(t)

	rd := LengthPrefixed.NewReader(bytes.NewReader([]byte{0, 0}), make([]byte, 32))
	_, err := rd.ReadMessage()
	as.ErrorIs(err, io.ErrUnexpectedEOF)
}

func TestPadAndTerminate(t *testing.T) {
	as := require.New(t)

	padded, err := Pad([]byte("ABC"), pipe.BufferSize)
	as.NoError(err)
	as.Len(padded, pipe.BufferSize)
	as.Equal("ABC", string(Payload(padded)))
	as.Equal(pipe.Sentinel, padded[pipe.BufferSize-1])

	_, err = Pad(make([]byte, pipe.BufferSize+1), pipe.BufferSize)
	as.ErrorIs(err, ErrFrameTooLarge)

	as.Equal([]byte{'x', pipe.Sentinel}, Terminate([]byte("x")))
}

func TestValidate(t *testing.T) {
	as := require.New(t)

	as.NoError(Validate([]byte("scan ok"), pipe.BufferSize))
	as.ErrorIs(Validate([]byte{'a', pipe.Sentinel}, pipe.BufferSize), ErrSentinelInPayload)
	as.ErrorIs(Validate(make([]byte, 10), 5), ErrFrameTooLarge)
}

func TestParseFraming(t *testing.T) {
	as := require.New(t)

	f, err := ParseFraming("")
	as.NoError(err)
	as.Equal(Sentinel, f)

	as.NoError(f.UnmarshalText([]byte("length")))
	as.Equal(LengthPrefixed, f)
	as.Equal("length", f.String())

	_, err = ParseFraming("xml")
	as.Error(err)
}

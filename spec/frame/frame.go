package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.miragespace.co/scanpipe/spec/pipe"
)

var (
	ErrFrameTooLarge     = errors.New("frame exceeds buffer size")
	ErrSentinelInPayload = errors.New("payload contains the sentinel byte")
)

// Framing selects how message boundaries are found on the wire.
//
// Sentinel is the legacy format spoken by the native analyzer: every read of
// up to BufferSize bytes is one message, cut at the first 0xCC byte. It cannot
// carry 0xCC as data and does not reassemble messages longer than one read.
// LengthPrefixed is opt-in and only usable when both peers agree on it.
type Framing int

const (
	Sentinel Framing = iota
	LengthPrefixed
)

func (f Framing) String() string {
	switch f {
	case Sentinel:
		return "sentinel"
	case LengthPrefixed:
		return "length"
	default:
		return fmt.Sprintf("Framing(%d)", int(f))
	}
}

func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sentinel", "legacy":
		return Sentinel, nil
	case "length", "length-prefixed":
		return LengthPrefixed, nil
	default:
		return 0, fmt.Errorf("unknown framing %q; valid framings: sentinel, length", s)
	}
}

func (f *Framing) UnmarshalText(text []byte) error {
	parsed, err := ParseFraming(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MessageReader yields one message per call. The returned slice is only valid
// until the next call. io.EOF is returned once the peer has disconnected.
type MessageReader interface {
	ReadMessage() ([]byte, error)
}

// NewReader returns a MessageReader that reads from r using buf as its window.
// The size of buf bounds the size of a single message.
func (f Framing) NewReader(r io.Reader, buf []byte) MessageReader {
	switch f {
	case LengthPrefixed:
		return &lengthReader{r: r, buf: buf}
	default:
		return &sentinelReader{r: r, buf: buf}
	}
}

// WriteMessage writes payload to w. Sentinel framing writes payload as is;
// terminating it is up to the caller.
func (f Framing) WriteMessage(w io.Writer, payload []byte) error {
	switch f {
	case LengthPrefixed:
		return writeLengthPrefixed(w, payload)
	default:
		return writeFull(w, payload)
	}
}

// Payload returns the bytes preceding the first sentinel in buf, or buf
// itself when no sentinel is present.
func Payload(buf []byte) []byte {
	if i := bytes.IndexByte(buf, pipe.Sentinel); i >= 0 {
		return buf[:i]
	}
	return buf
}

// Terminate appends the sentinel to payload.
func Terminate(payload []byte) []byte {
	return append(payload, pipe.Sentinel)
}

// Pad fills payload up to size with the sentinel, the way the native peer
// fills its fixed send buffer.
func Pad(payload []byte, size int) ([]byte, error) {
	if len(payload) > size {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), size)
	}
	out := make([]byte, size)
	n := copy(out, payload)
	for i := n; i < size; i++ {
		out[i] = pipe.Sentinel
	}
	return out, nil
}

// Validate reports whether payload can be carried by sentinel framing within
// a window of size bytes.
func Validate(payload []byte, size int) error {
	if bytes.IndexByte(payload, pipe.Sentinel) >= 0 {
		return ErrSentinelInPayload
	}
	if len(payload) > size {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), size)
	}
	return nil
}

type sentinelReader struct {
	r   io.Reader
	buf []byte
}

func (s *sentinelReader) ReadMessage() ([]byte, error) {
	n, err := s.r.Read(s.buf)
	if n == 0 {
		// a zero byte read is a disconnect, not an empty frame
		if err == nil || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return Payload(s.buf[:n]), nil
}

func writeFull(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

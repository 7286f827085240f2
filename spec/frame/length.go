package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	pool "github.com/libp2p/go-buffer-pool"
)

const (
	// uint32
	LengthSize = 4
)

type lengthReader struct {
	r      io.Reader
	buf    []byte
	header [LengthSize]byte
}

func (l *lengthReader) ReadMessage() ([]byte, error) {
	if _, err := io.ReadFull(l.r, l.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame length: %w", err)
	}

	size := binary.BigEndian.Uint32(l.header[:])
	if uint64(size) > uint64(len(l.buf)) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, len(l.buf))
	}

	if _, err := io.ReadFull(l.r, l.buf[:size]); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return l.buf[:size], nil
}

func writeLengthPrefixed(w io.Writer, payload []byte) error {
	mb := pool.Get(LengthSize + len(payload))
	defer pool.Put(mb)

	binary.BigEndian.PutUint32(mb[0:LengthSize], uint32(len(payload)))
	copy(mb[LengthSize:], payload)

	if err := writeFull(w, mb); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {
	as := require.New(t)

	p := NewBufferPool(500)

	buf := p.Get()
	as.Len(buf, 500)
	p.Put(buf)

	as.Len(p.Get(), 500)
}

package pipe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	as := require.New(t)

	for _, s := range []string{"read", "READ", " r ", "0"} {
		m, err := ParseMode(s)
		as.NoError(err, s)
		as.Equal(ModeRead, m, s)
	}
	for _, s := range []string{"write", "W", "1"} {
		m, err := ParseMode(s)
		as.NoError(err, s)
		as.Equal(ModeWrite, m, s)
	}

	_, err := ParseMode("duplex")
	as.ErrorContains(err, "unknown pipe mode")
}

func TestModeText(t *testing.T) {
	as := require.New(t)

	b, err := ModeWrite.MarshalText()
	as.NoError(err)
	as.Equal("write", string(b))

	var m Mode
	as.NoError(m.UnmarshalText([]byte("1")))
	as.Equal(ModeWrite, m)

	_, err = Mode(7).MarshalText()
	as.Error(err)
	as.Equal("Mode(7)", Mode(7).String())
}

package frame

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Charset is a fixed single byte text encoding. Bytes and runes that cannot
// be represented are replaced with '?'.
type Charset interface {
	Name() string
	Decode(b []byte) string
	Encode(s string) []byte
}

var (
	ASCII       Charset = asciiCharset{}
	Latin1      Charset = &charmapCharset{name: "latin1", cm: charmap.ISO8859_1}
	Windows1252 Charset = &charmapCharset{name: "windows-1252", cm: charmap.Windows1252}
)

func LookupCharset(name string) (Charset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "latin1", "iso-8859-1":
		return Latin1, nil
	case "ascii", "us-ascii":
		return ASCII, nil
	case "windows-1252", "cp1252":
		return Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q; valid charsets: ascii, latin1, windows-1252", name)
	}
}

type asciiCharset struct{}

func (asciiCharset) Name() string {
	return "ascii"
}

func (asciiCharset) Decode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c >= utf8.RuneSelf {
			c = '?'
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func (asciiCharset) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r >= utf8.RuneSelf {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

type charmapCharset struct {
	name string
	cm   *charmap.Charmap
}

func (c *charmapCharset) Name() string {
	return c.name
}

func (c *charmapCharset) Decode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, x := range b {
		r := c.cm.DecodeByte(x)
		if r == utf8.RuneError {
			r = '?'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (c *charmapCharset) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := c.cm.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

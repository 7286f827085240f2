package pipe

import (
	"fmt"
	"strings"
)

// Mode selects whether accepted connections get a dedicated reader.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "read"/"write" as well as the numeric forms "0"/"1"
// used by existing peers.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "r", "0":
		return ModeRead, nil
	case "write", "w", "1":
		return ModeWrite, nil
	default:
		return 0, fmt.Errorf("unknown pipe mode %q; valid modes: read, write", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case ModeRead, ModeWrite:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("unknown pipe mode %d", int(m))
	}
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

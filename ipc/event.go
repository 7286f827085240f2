package ipc

import "fmt"

type EventType int

const (
	// EventConnected is emitted once a peer has connected.
	EventConnected EventType = iota
	// EventDisconnected is emitted when the peer or the application closed
	// the connection.
	EventDisconnected
	// EventErrored is emitted when an I/O error tore down the connection.
	EventErrored
)

func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventErrored:
		return "errored"
	default:
		return fmt.Sprintf("EventType(%d)", int(e))
	}
}

// Event describes a connection lifecycle change. Every connection gets
// exactly one EventConnected followed by exactly one terminal event.
type Event struct {
	Type       EventType
	Connection *Connection
	Err        error
}

package timing

import "time"

const (
	AcceptRetryDelay = time.Millisecond * 100 // first delay when accept retry is enabled

	PipeDialTimeout    = time.Second * 5
	PipeDialRetryDelay = time.Millisecond * 200
	PipeReplyTimeout   = time.Second * 5
)

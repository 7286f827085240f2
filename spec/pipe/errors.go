package pipe

import "fmt"

var (
	ErrCreation       = fmt.Errorf("cannot create pipe instance")
	ErrConnect        = fmt.Errorf("cannot connect pipe client")
	ErrRead           = fmt.Errorf("pipe read failed")
	ErrWriteNotReady  = fmt.Errorf("pipe is not writable")
	ErrClosed         = fmt.Errorf("pipe transport is already closed")
	ErrAlreadyStarted = fmt.Errorf("pipe transport is already started")
)

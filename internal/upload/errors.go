package upload

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session id is unknown, already
// completed, or already cancelled. Callers retrying after completion
// are expected to hit this, so it is kept distinct from I/O failures.
var ErrSessionNotFound = errors.New("upload session not found")

// SizeExceededError reports a declared size over the configured ceiling.
type SizeExceededError struct {
	Declared uint64
	Limit    uint64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("declared size %d exceeds limit of %d bytes", e.Declared, e.Limit)
}

// DestinationBusyError reports that another live session already holds
// the resolved destination path.
type DestinationBusyError struct {
	Name string
}

func (e *DestinationBusyError) Error() string {
	return fmt.Sprintf("destination %q is claimed by another upload", e.Name)
}

package runsync

import "errors"

var (
	// ErrNotPending is returned when a node has no outstanding decision.
	ErrNotPending = errors.New("node has no pending selection")
	// ErrChoiceOutOfRange is returned for an option index outside the list.
	ErrChoiceOutOfRange = errors.New("choice index out of range")
	// ErrStreamClosed is reported when the producer closes the stream
	// without sending end.
	ErrStreamClosed = errors.New("stream closed by server")
)

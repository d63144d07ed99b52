package domain

import "errors"

// Sentinel errors recognized by the HTTP and message-channel boundaries and
// mapped to the error kinds in the signaling surface.
var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrPeerNotFound         = errors.New("peer not found")
	ErrTransportNotFound    = errors.New("transport not found")
	ErrProducerNotFound     = errors.New("producer not found")
	ErrConsumerNotFound     = errors.New("consumer not found")
	ErrDataProducerNotFound = errors.New("data producer not found")
	ErrDataConsumerNotFound = errors.New("data consumer not found")

	ErrRoomClosed          = errors.New("room is closed")
	ErrPeerAlreadyJoined   = errors.New("peer already joined")
	ErrPeerNotJoined       = errors.New("peer has not joined")
	ErrPipeModeNeedsWorkers = errors.New("pipe mode requires at least two workers")
	ErrSchedulerStopped    = errors.New("scheduler is stopped")
	ErrUnsupportedCapability = errors.New("capabilities rejected by router")

	ErrForbiddenOrigin  = errors.New("origin not allowed")
	ErrForbiddenSecret  = errors.New("throttle secret missing or invalid")

	ErrMalformedRequest = errors.New("malformed request")
)

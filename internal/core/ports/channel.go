package ports

import "context"

// PeerChannel is the room's view of one interactive peer's message
// channel: notifications are fire-and-forget, requests expect an
// acknowledgement (spec.md §4.2 "Requests to peer (room-initiated)").
// The gorilla/websocket-backed implementation lives in
// internal/infrastructure/signal.
type PeerChannel interface {
	// Notify sends a fire-and-forget notification. Errors are logged by
	// the caller, never surfaced to the peer (spec.md §7).
	Notify(method string, payload interface{}) error
	// Request sends a room-initiated request and blocks for the peer's
	// acknowledgement or ctx cancellation.
	Request(ctx context.Context, method string, payload interface{}) (response interface{}, err error)
	Close() error
}
